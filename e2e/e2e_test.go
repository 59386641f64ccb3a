package e2e

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"credlife/e2e/steps/admin"
	"credlife/e2e/steps/common"
	"credlife/e2e/steps/credential"
)

var opts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
	Strict: true,
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options:             &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	// Steps are bound once; each scenario swaps in a fresh server behind them.
	tc := &scenario{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		next, err := NewTestContext()
		if err != nil {
			return ctx, err
		}
		tc.TestContext = next
		return ctx, nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil && tc.TestContext != nil {
			fmt.Printf("Scenario failed: %s\nLast Response: %s\n", s.Name, string(tc.LastResponseBody))
		}
		if tc.TestContext != nil {
			tc.Close()
		}
		return ctx, nil
	})

	common.RegisterSteps(sc, tc)
	credential.RegisterSteps(sc, tc)
	admin.RegisterSteps(sc, tc)
}

// scenario forwards to the TestContext of the running scenario.
type scenario struct {
	*TestContext
}
