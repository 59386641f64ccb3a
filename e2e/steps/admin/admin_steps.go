package admin

import (
	"context"

	"github.com/cucumber/godog"
)

// TestContext defines the methods needed from the main test context
type TestContext interface {
	As(name string) error
	Do(method, path string, body any) error
	ActorID(name string) (string, error)
	OwnerKind(name string) string
}

// RegisterSteps registers suspension and expiry scan steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^"([^"]*)" suspends "([^"]*)" with reason "([^"]*)"$`, steps.suspend)
	ctx.Step(`^"([^"]*)" lifts the suspension of "([^"]*)"$`, steps.lift)
	ctx.Step(`^"([^"]*)" runs the expiry scan$`, steps.runScan)
}

type adminSteps struct {
	tc TestContext
}

func (s *adminSteps) suspensionPath(owner string) (string, error) {
	ownerID, err := s.tc.ActorID(owner)
	if err != nil {
		return "", err
	}
	return "/admin/owners/" + ownerID + "/suspension", nil
}

func (s *adminSteps) suspend(_ context.Context, as, owner, reason string) error {
	path, err := s.suspensionPath(owner)
	if err != nil {
		return err
	}
	if err := s.tc.As(as); err != nil {
		return err
	}
	return s.tc.Do("POST", path, map[string]any{"owner_kind": s.tc.OwnerKind(owner), "reason": reason})
}

func (s *adminSteps) lift(_ context.Context, as, owner string) error {
	path, err := s.suspensionPath(owner)
	if err != nil {
		return err
	}
	if err := s.tc.As(as); err != nil {
		return err
	}
	return s.tc.Do("DELETE", path+"?owner_kind="+s.tc.OwnerKind(owner), nil)
}

func (s *adminSteps) runScan(_ context.Context, as string) error {
	if err := s.tc.As(as); err != nil {
		return err
	}
	return s.tc.Do("POST", "/admin/expiry-scan", nil)
}
