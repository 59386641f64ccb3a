package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	id "credlife/pkg/domain"
)

// TestContext defines the methods needed from the main test context
type TestContext interface {
	Register(name string, role id.Role, ownerKind string) error
	As(name string) error
	Do(method, path string, body any) error
	Advance(d time.Duration)
	Events() []string
	GetResponseField(path string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers common step definitions used across features
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the credential service is running$`, steps.serviceIsRunning)
	ctx.Step(`^(deliverer|provider|merchant) "([^"]*)" is registered$`, steps.registerOwner)
	ctx.Step(`^(reviewer|admin) "([^"]*)" is registered$`, steps.registerStaff)
	ctx.Step(`^(\d+) days pass$`, steps.daysPass)
	ctx.Step(`^an anonymous caller GETs "([^"]*)"$`, steps.anonymousGet)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should contain "([^"]*)"$`, steps.responseFieldShouldContain)
	ctx.Step(`^the response field "([^"]*)" should not contain "([^"]*)"$`, steps.responseFieldShouldNotContain)
	ctx.Step(`^the response field "([^"]*)" should be empty$`, steps.responseFieldShouldBeEmpty)
	ctx.Step(`^the response should list (\d+) (?:entries|credentials) in "([^"]*)"$`, steps.responseShouldList)
	ctx.Step(`^an? "([^"]*)" notification should have been emitted(?: (\d+) times?)?$`, steps.notificationEmitted)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsRunning(context.Context) error {
	return nil
}

func (s *commonSteps) registerOwner(_ context.Context, kind, name string) error {
	return s.tc.Register(name, id.RoleOwner, kind)
}

func (s *commonSteps) registerStaff(_ context.Context, role, name string) error {
	return s.tc.Register(name, id.Role(role), "")
}

func (s *commonSteps) daysPass(_ context.Context, days int) error {
	s.tc.Advance(time.Duration(days) * 24 * time.Hour)
	return nil
}

func (s *commonSteps) anonymousGet(_ context.Context, path string) error {
	if err := s.tc.As(""); err != nil {
		return err
	}
	return s.tc.Do("GET", path, nil)
}

func (s *commonSteps) responseStatusShouldBe(_ context.Context, expected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual != expected {
		return fmt.Errorf("expected status %d but got %d\nResponse: %s", expected, actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, code string) error {
	return s.responseFieldShouldEqual(ctx, "error", code)
}

func (s *commonSteps) responseFieldShouldEqual(_ context.Context, field, expected string) error {
	actual, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actual) != expected {
		return fmt.Errorf("field %s: expected %s but got %v", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldContain(_ context.Context, field, expected string) error {
	actual, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if list, ok := actual.([]any); ok {
		for _, v := range list {
			if fmt.Sprint(v) == expected {
				return nil
			}
		}
		return fmt.Errorf("field %s: %v does not include %s", field, list, expected)
	}
	if !strings.Contains(fmt.Sprint(actual), expected) {
		return fmt.Errorf("field %s: expected to contain %s but got %v", field, expected, actual)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldNotContain(ctx context.Context, field, unexpected string) error {
	if _, err := s.tc.GetResponseField(field); err != nil {
		return err
	}
	if err := s.responseFieldShouldContain(ctx, field, unexpected); err == nil {
		return fmt.Errorf("field %s: expected not to contain %s", field, unexpected)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBeEmpty(_ context.Context, field string) error {
	actual, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	switch v := actual.(type) {
	case nil:
		return nil
	case []any:
		if len(v) == 0 {
			return nil
		}
	case string:
		if v == "" {
			return nil
		}
	}
	return fmt.Errorf("field %s: expected empty but got %v", field, actual)
}

func (s *commonSteps) responseShouldList(_ context.Context, n int, field string) error {
	actual, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	list, ok := actual.([]any)
	if !ok {
		return fmt.Errorf("field %s is not a list", field)
	}
	if len(list) != n {
		return fmt.Errorf("field %s: expected %d items but got %d", field, n, len(list))
	}
	return nil
}

func (s *commonSteps) notificationEmitted(_ context.Context, eventType, times string) error {
	count := 0
	for _, e := range s.tc.Events() {
		if e == eventType {
			count++
		}
	}
	if times == "" {
		if count == 0 {
			return fmt.Errorf("no %s notification in %v", eventType, s.tc.Events())
		}
		return nil
	}
	var want int
	if _, err := fmt.Sscan(times, &want); err != nil {
		return err
	}
	if count != want {
		return fmt.Errorf("expected %d %s notifications but got %d", want, eventType, count)
	}
	return nil
}
