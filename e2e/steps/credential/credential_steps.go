package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext defines the methods needed from the main test context
type TestContext interface {
	As(name string) error
	Do(method, path string, body any) error
	OwnerPath(name string) (string, error)
	Now() time.Time
	Save(key, value string)
	Saved(key string) (string, error)
	GetResponseField(path string) (any, error)
	GetLastResponseStatus() int
}

// RegisterSteps registers submission, review and status steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &credentialSteps{tc: tc}

	ctx.Step(`^"([^"]*)" submits an? "([^"]*)" credential with file "([^"]*)"$`, steps.submit)
	ctx.Step(`^"([^"]*)" submits an? "([^"]*)" credential with file "([^"]*)" of type "([^"]*)"$`, steps.submitWithType)
	ctx.Step(`^"([^"]*)" submits an? "([^"]*)" credential for "([^"]*)"$`, steps.submitFor)
	ctx.Step(`^I save the credential ID as "([^"]*)"$`, steps.saveCredentialID)
	ctx.Step(`^"([^"]*)" has an? "([^"]*)" credential approved by "([^"]*)" saved as "([^"]*)"$`, steps.approvedCredential)

	ctx.Step(`^"([^"]*)" approves credential "([^"]*)"$`, steps.approve)
	ctx.Step(`^"([^"]*)" rejects credential "([^"]*)" with reason "([^"]*)"$`, steps.reject)
	ctx.Step(`^"([^"]*)" rejects credential "([^"]*)" without a reason$`, steps.rejectWithoutReason)

	ctx.Step(`^"([^"]*)" checks the status of "([^"]*)"$`, steps.checkStatus)
	ctx.Step(`^"([^"]*)" lists the credentials of "([^"]*)"(?: with query "([^"]*)")?$`, steps.listCredentials)
	ctx.Step(`^"([^"]*)" views the history of credential "([^"]*)"$`, steps.history)
	ctx.Step(`^"([^"]*)" views credential "([^"]*)"$`, steps.view)
	ctx.Step(`^"([^"]*)" lists the pending review queue(?: with query "([^"]*)")?$`, steps.pendingQueue)
	ctx.Step(`^"([^"]*)" reminds "([^"]*)" of missing credentials$`, steps.remind)
	ctx.Step(`^the response field "([^"]*)" should equal the saved "([^"]*)"$`, steps.fieldEqualsSaved)
}

type credentialSteps struct {
	tc TestContext
}

func (s *credentialSteps) post(as, path string, body any) error {
	if err := s.tc.As(as); err != nil {
		return err
	}
	return s.tc.Do("POST", path, body)
}

func (s *credentialSteps) get(as, path string) error {
	if err := s.tc.As(as); err != nil {
		return err
	}
	return s.tc.Do("GET", path, nil)
}

func (s *credentialSteps) submitAs(as, owner, kind, uri, mime string) error {
	path, err := s.tc.OwnerPath(owner)
	if err != nil {
		return err
	}
	return s.post(as, path+"/credentials", map[string]any{
		"kind": kind,
		"file": map[string]any{"uri": uri, "mime_type": mime, "size_bytes": 48_000},
	})
}

func (s *credentialSteps) submit(_ context.Context, owner, kind, uri string) error {
	return s.submitAs(owner, owner, kind, uri, "application/pdf")
}

func (s *credentialSteps) submitWithType(_ context.Context, owner, kind, uri, mime string) error {
	return s.submitAs(owner, owner, kind, uri, mime)
}

func (s *credentialSteps) submitFor(_ context.Context, as, kind, owner string) error {
	return s.submitAs(as, owner, kind, "s3://creds/"+owner+"/"+kind+".pdf", "application/pdf")
}

func (s *credentialSteps) saveCredentialID(_ context.Context, key string) error {
	for _, field := range []string{"credential.id", "id"} {
		if v, err := s.tc.GetResponseField(field); err == nil {
			s.tc.Save(key, fmt.Sprint(v))
			return nil
		}
	}
	return fmt.Errorf("no credential ID in last response")
}

func (s *credentialSteps) approvedCredential(ctx context.Context, owner, kind, reviewer, key string) error {
	uri := fmt.Sprintf("s3://creds/%s/%s-%d.pdf", owner, kind, s.tc.Now().UnixNano())
	if err := s.submitAs(owner, owner, kind, uri, "application/pdf"); err != nil {
		return err
	}
	if code := s.tc.GetLastResponseStatus(); code != 201 {
		return fmt.Errorf("submission failed with status %d", code)
	}
	if err := s.saveCredentialID(ctx, key); err != nil {
		return err
	}
	credentialID, _ := s.tc.Saved(key)
	if err := s.post(reviewer, "/credentials/"+credentialID+"/review", map[string]any{"decision": "approve"}); err != nil {
		return err
	}
	if code := s.tc.GetLastResponseStatus(); code != 200 {
		return fmt.Errorf("approval failed with status %d", code)
	}
	return nil
}

func (s *credentialSteps) review(as, key string, body map[string]any) error {
	credentialID, err := s.tc.Saved(key)
	if err != nil {
		return err
	}
	return s.post(as, "/credentials/"+credentialID+"/review", body)
}

func (s *credentialSteps) approve(_ context.Context, as, key string) error {
	return s.review(as, key, map[string]any{"decision": "approve"})
}

func (s *credentialSteps) reject(_ context.Context, as, key, reason string) error {
	return s.review(as, key, map[string]any{"decision": "reject", "reason": reason})
}

func (s *credentialSteps) rejectWithoutReason(_ context.Context, as, key string) error {
	return s.review(as, key, map[string]any{"decision": "reject"})
}

func (s *credentialSteps) checkStatus(_ context.Context, as, owner string) error {
	path, err := s.tc.OwnerPath(owner)
	if err != nil {
		return err
	}
	return s.get(as, path+"/status")
}

func (s *credentialSteps) listCredentials(_ context.Context, as, owner, query string) error {
	path, err := s.tc.OwnerPath(owner)
	if err != nil {
		return err
	}
	path += "/credentials"
	if query != "" {
		path += "?" + query
	}
	return s.get(as, path)
}

func (s *credentialSteps) history(_ context.Context, as, key string) error {
	credentialID, err := s.tc.Saved(key)
	if err != nil {
		return err
	}
	return s.get(as, "/credentials/"+credentialID+"/history")
}

func (s *credentialSteps) pendingQueue(_ context.Context, as, query string) error {
	path := "/credentials?status=pending"
	if query != "" {
		path += "&" + query
	}
	return s.get(as, path)
}

func (s *credentialSteps) remind(_ context.Context, as, owner string) error {
	path, err := s.tc.OwnerPath(owner)
	if err != nil {
		return err
	}
	return s.post(as, path+"/reminders", nil)
}

func (s *credentialSteps) view(_ context.Context, as, key string) error {
	credentialID, err := s.tc.Saved(key)
	if err != nil {
		return err
	}
	return s.get(as, "/credentials/"+credentialID)
}

func (s *credentialSteps) fieldEqualsSaved(_ context.Context, field, key string) error {
	want, err := s.tc.Saved(key)
	if err != nil {
		return err
	}
	actual, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actual) != want {
		return fmt.Errorf("field %s: expected saved %s (%s) but got %v", field, key, want, actual)
	}
	return nil
}
