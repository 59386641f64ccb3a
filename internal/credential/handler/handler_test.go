package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/policy"
	"credlife/internal/credential/service"
	"credlife/internal/credential/store"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	"credlife/pkg/platform/httputil"
	"credlife/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	now      time.Time
	owner    models.OwnerRef
	self     requestcontext.AuthenticatedActor
	reviewer requestcontext.AuthenticatedActor
	admin    requestcontext.AuthenticatedActor
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policies, err := policy.NewSet(policy.OwnerPolicy{
		OwnerKind: models.OwnerDeliverer,
		Rules: []policy.Rule{
			{Kind: models.KindIdentityDocument, Required: true},
			{Kind: models.KindDrivingLicense, Required: true},
		},
	})
	s.Require().NoError(err)

	svc := service.New(
		store.NewInMemory(),
		store.NewInMemorySuspensions(),
		audit.NewRecorder(audit.NewInMemoryStore(), audit.WithLogger(logger)),
		notification.NewRecorder(),
		service.WithLogger(logger),
		service.WithPolicies(policies),
	)
	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)

	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s.owner = models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerDeliverer}
	s.self = requestcontext.AuthenticatedActor{ID: id.ActorID(s.owner.ID), Role: id.RoleOwner}
	s.reviewer = requestcontext.AuthenticatedActor{ID: id.ActorID(id.NewOwnerID()), Role: id.RoleReviewer}
	s.admin = requestcontext.AuthenticatedActor{ID: id.ActorID(id.NewOwnerID()), Role: id.RoleAdmin}
}

func (s *HandlerSuite) do(actor requestcontext.AuthenticatedActor, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	if !actor.IsZero() {
		ctx = requestcontext.WithActor(ctx, actor)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (s *HandlerSuite) ownerPath(suffix string) string {
	return "/owners/" + string(s.owner.Kind) + "/" + s.owner.ID.String() + suffix
}

func (s *HandlerSuite) submitBody(kind models.Kind, uri string) map[string]any {
	return map[string]any{
		"kind": string(kind),
		"file": map[string]any{"uri": uri, "mime_type": "application/pdf", "size_bytes": 2048},
	}
}

func (s *HandlerSuite) submit(kind models.Kind, uri string) SubmitResponse {
	rec := s.do(s.self, http.MethodPost, s.ownerPath("/credentials"), s.submitBody(kind, uri))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp SubmitResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *HandlerSuite) TestSubmitReturnsPendingCredentialAndStatus() {
	resp := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	s.Equal("pending", resp.Credential.Status)
	s.Equal(s.owner.ID.String(), resp.Credential.OwnerID)
	s.Equal("in_progress", resp.Status.OverallStatus)
	s.Equal(0, resp.Status.CompletionPercentage)
	s.Equal([]string{"driving_license"}, resp.Status.MissingKinds)
}

func (s *HandlerSuite) TestSubmitValidation() {
	tests := []struct {
		name string
		body map[string]any
		code int
		err  string
	}{
		{
			name: "unknown kind",
			body: s.submitBody("passport_photo", "s3://creds/a.pdf"),
			code: http.StatusBadRequest,
			err:  "validation_failed",
		},
		{
			name: "missing file uri",
			body: map[string]any{"kind": "identity_document", "file": map[string]any{"mime_type": "application/pdf"}},
			code: http.StatusBadRequest,
			err:  "validation_failed",
		},
		{
			name: "kind outside owner policy",
			body: s.submitBody(models.KindCommercialContract, "s3://creds/contract.pdf"),
			code: http.StatusUnprocessableEntity,
			err:  "policy_violation",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(s.self, http.MethodPost, s.ownerPath("/credentials"), tt.body)
			s.Equal(tt.code, rec.Code, rec.Body.String())
			s.Equal(tt.err, decode[httputil.ErrorResponse](s, rec).Error)
		})
	}
}

func (s *HandlerSuite) TestSubmitForAnotherOwnerIsForbidden() {
	other := requestcontext.AuthenticatedActor{ID: id.ActorID(id.NewOwnerID()), Role: id.RoleOwner}

	rec := s.do(other, http.MethodPost, s.ownerPath("/credentials"), s.submitBody(models.KindIdentityDocument, "s3://creds/id.pdf"))

	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestSubmitRejectsUnknownOwnerKindInPath() {
	rec := s.do(s.self, http.MethodPost, "/owners/courier/"+s.owner.ID.String()+"/credentials", s.submitBody(models.KindIdentityDocument, "s3://creds/id.pdf"))

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestDuplicatePendingFileConflicts() {
	s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	rec := s.do(s.self, http.MethodPost, s.ownerPath("/credentials"), s.submitBody(models.KindIdentityDocument, "s3://creds/id.pdf"))

	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("duplicate_active_credential", decode[httputil.ErrorResponse](s, rec).Error)
}

func (s *HandlerSuite) TestReviewFlowVerifiesOwner() {
	first := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	second := s.submit(models.KindDrivingLicense, "s3://creds/license.pdf")

	rec := s.do(s.reviewer, http.MethodPost, "/credentials/"+first.Credential.ID+"/review", map[string]any{"decision": "approve"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.False(decode[ReviewResponse](s, rec).OwnerVerified)

	rec = s.do(s.reviewer, http.MethodPost, "/credentials/"+second.Credential.ID+"/review", map[string]any{"decision": "approve"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ReviewResponse](s, rec)
	s.True(resp.OwnerVerified)
	s.Equal("approved", resp.Credential.Status)
	s.Equal(s.reviewer.ID.String(), resp.Credential.ReviewerID)

	rec = s.do(s.self, http.MethodGet, s.ownerPath("/status"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	status := decode[StatusResponse](s, rec)
	s.Equal("verified", status.OverallStatus)
	s.Equal(100, status.CompletionPercentage)
	s.Empty(status.MissingKinds)
}

func (s *HandlerSuite) TestReviewRequiresStaffRole() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	rec := s.do(s.self, http.MethodPost, "/credentials/"+sub.Credential.ID+"/review", map[string]any{"decision": "approve"})

	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestRejectWithoutReasonIsBadRequest() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	rec := s.do(s.reviewer, http.MethodPost, "/credentials/"+sub.Credential.ID+"/review", map[string]any{"decision": "reject"})

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReviewTwiceIsInvalidTransition() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	path := "/credentials/" + sub.Credential.ID + "/review"
	s.Require().Equal(http.StatusOK, s.do(s.reviewer, http.MethodPost, path, map[string]any{"decision": "approve"}).Code)

	rec := s.do(s.reviewer, http.MethodPost, path, map[string]any{"decision": "reject", "reason": "blurry"})

	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("invalid_transition", decode[httputil.ErrorResponse](s, rec).Error)
}

func (s *HandlerSuite) TestListFiltersByStatusAndHidesReplaced() {
	first := s.submit(models.KindIdentityDocument, "s3://creds/id-v1.pdf")
	s.submit(models.KindIdentityDocument, "s3://creds/id-v2.pdf")
	s.submit(models.KindDrivingLicense, "s3://creds/license.pdf")

	rec := s.do(s.self, http.MethodGet, s.ownerPath("/credentials"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[ListResponse](s, rec).Credentials, 2)

	rec = s.do(s.reviewer, http.MethodGet, s.ownerPath("/credentials?status=replaced"), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	list := decode[ListResponse](s, rec)
	s.Require().Len(list.Credentials, 1)
	s.Equal(first.Credential.ID, list.Credentials[0].ID)
	s.NotEmpty(list.Credentials[0].SupersededByID)

	rec = s.do(s.self, http.MethodGet, s.ownerPath("/credentials?status=archived"), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestStatusOfOtherOwnerIsForbidden() {
	other := requestcontext.AuthenticatedActor{ID: id.ActorID(id.NewOwnerID()), Role: id.RoleOwner}

	rec := s.do(other, http.MethodGet, s.ownerPath("/status"), nil)

	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestGetCredentialHidesOtherOwners() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	other := requestcontext.AuthenticatedActor{ID: id.ActorID(id.NewOwnerID()), Role: id.RoleOwner}

	s.Equal(http.StatusOK, s.do(s.self, http.MethodGet, "/credentials/"+sub.Credential.ID, nil).Code)
	s.Equal(http.StatusNotFound, s.do(other, http.MethodGet, "/credentials/"+sub.Credential.ID, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(s.reviewer, http.MethodGet, "/credentials/not-a-uuid", nil).Code)
}

func (s *HandlerSuite) TestHistoryListsTransitions() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	s.Require().Equal(http.StatusOK, s.do(s.reviewer, http.MethodPost, "/credentials/"+sub.Credential.ID+"/review",
		map[string]any{"decision": "reject", "reason": "expired document"}).Code)

	rec := s.do(s.reviewer, http.MethodGet, "/credentials/"+sub.Credential.ID+"/history", nil)

	s.Require().Equal(http.StatusOK, rec.Code)
	history := decode[HistoryResponse](s, rec)
	s.Require().Len(history.Entries, 2)
	s.Equal(models.AuditActionSubmitted, history.Entries[0].Action)
	s.Equal("none", history.Entries[0].OldStatus)
	s.Equal(models.AuditActionRejected, history.Entries[1].Action)
	s.Equal("expired document", history.Entries[1].Reason)
}

func (s *HandlerSuite) TestDownloadWithoutSignerIsNotFound() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	rec := s.do(s.reviewer, http.MethodGet, "/credentials/"+sub.Credential.ID+"/download", nil)

	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestSuspendAndLift() {
	path := "/admin/owners/" + s.owner.ID.String() + "/suspension"

	rec := s.do(s.reviewer, http.MethodPost, path, map[string]any{"owner_kind": "deliverer", "reason": "fraud review"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(s.admin, http.MethodPost, path, map[string]any{"owner_kind": "deliverer", "reason": "fraud review"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("suspended", decode[SuspensionResponse](s, rec).Status.OverallStatus)

	rec = s.do(s.admin, http.MethodPost, path, map[string]any{"owner_kind": "deliverer", "reason": "again"})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(s.admin, http.MethodDelete, path+"?owner_kind=deliverer", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("not_started", decode[SuspensionResponse](s, rec).Status.OverallStatus)

	rec = s.do(s.admin, http.MethodDelete, path+"?owner_kind=deliverer", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestLiftRequiresOwnerKind() {
	rec := s.do(s.admin, http.MethodDelete, "/admin/owners/"+s.owner.ID.String()+"/suspension", nil)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestExpiryScanEndpoint() {
	rec := s.do(s.admin, http.MethodPost, "/admin/expiry-scan", nil)

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ScanResponse](s, rec)
	s.Empty(resp.Expired)
	s.Empty(resp.Failures)
}

func (s *HandlerSuite) TestUnauthenticatedStaffRouteIsUnauthorized() {
	rec := s.do(requestcontext.AuthenticatedActor{}, http.MethodPost, "/admin/expiry-scan", nil)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestAdminCanReview() {
	sub := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	rec := s.do(s.admin, http.MethodPost, "/credentials/"+sub.Credential.ID+"/review", map[string]any{"decision": "approve"})

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ReviewResponse](s, rec)
	s.Equal("approved", resp.Credential.Status)
	s.Equal(s.admin.ID.String(), resp.Credential.ReviewerID)
}

func (s *HandlerSuite) TestPendingQueueAcrossOwners() {
	first := s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	reviewed := s.submit(models.KindDrivingLicense, "s3://creds/license.pdf")
	s.Require().Equal(http.StatusOK, s.do(s.reviewer, http.MethodPost, "/credentials/"+reviewed.Credential.ID+"/review",
		map[string]any{"decision": "approve"}).Code)

	other := models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerDeliverer}
	otherActor := requestcontext.AuthenticatedActor{ID: id.ActorID(other.ID), Role: id.RoleOwner}
	rec := s.do(otherActor, http.MethodPost, "/owners/deliverer/"+other.ID.String()+"/credentials",
		s.submitBody(models.KindIdentityDocument, "s3://creds/other-id.pdf"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[SubmitResponse](s, rec)

	rec = s.do(s.reviewer, http.MethodGet, "/credentials?status=pending&owner_kind=deliverer", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	ids := []string{}
	for _, c := range decode[ListResponse](s, rec).Credentials {
		s.Equal("pending", c.Status)
		ids = append(ids, c.ID)
	}
	s.ElementsMatch([]string{first.Credential.ID, second.Credential.ID}, ids)

	rec = s.do(s.admin, http.MethodGet, "/credentials?owner_kind=merchant&limit=5", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Empty(decode[ListResponse](s, rec).Credentials)
}

func (s *HandlerSuite) TestPendingQueueValidation() {
	s.Equal(http.StatusForbidden, s.do(s.self, http.MethodGet, "/credentials", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(s.reviewer, http.MethodGet, "/credentials?status=approved", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(s.reviewer, http.MethodGet, "/credentials?owner_kind=courier", nil).Code)
	s.Equal(http.StatusBadRequest, s.do(s.reviewer, http.MethodGet, "/credentials?limit=-1", nil).Code)
}

func (s *HandlerSuite) TestOwnerHistoryIncludesSuspension() {
	s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")
	s.Require().Equal(http.StatusOK, s.do(s.admin, http.MethodPost, "/admin/owners/"+s.owner.ID.String()+"/suspension",
		map[string]any{"owner_kind": "deliverer", "reason": "fraud review"}).Code)

	s.Equal(http.StatusForbidden, s.do(s.self, http.MethodGet, s.ownerPath("/history"), nil).Code)

	rec := s.do(s.reviewer, http.MethodGet, s.ownerPath("/history"), nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	history := decode[OwnerHistoryResponse](s, rec)
	s.Equal(s.owner.ID.String(), history.OwnerID)
	s.Require().Len(history.Entries, 2)
	s.Equal(models.AuditActionSubmitted, history.Entries[0].Action)
	s.Equal(models.AuditActionSuspended, history.Entries[1].Action)
}

func (s *HandlerSuite) TestRemindMissingCredentials() {
	s.submit(models.KindIdentityDocument, "s3://creds/id.pdf")

	s.Equal(http.StatusForbidden, s.do(s.self, http.MethodPost, s.ownerPath("/reminders"), nil).Code)

	rec := s.do(s.reviewer, http.MethodPost, s.ownerPath("/reminders"), nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ReminderResponse](s, rec)
	s.True(resp.Sent)
	s.Equal([]string{"driving_license"}, resp.Kinds)
}
