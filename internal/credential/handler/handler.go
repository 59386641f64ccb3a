package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/service"
	"credlife/internal/credential/workers/expiry"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/platform/httputil"
	"credlife/pkg/platform/middleware/auth"
	"credlife/pkg/requestcontext"
)

// Service defines the credential operations used by the handler.
type Service interface {
	Submit(ctx context.Context, cmd service.SubmitCommand) (*service.SubmitResult, error)
	Review(ctx context.Context, cmd service.ReviewCommand) (*service.ReviewResult, error)
	GetStatus(ctx context.Context, owner models.OwnerRef) (models.VerificationStatus, error)
	ListCredentials(ctx context.Context, owner models.OwnerRef, filter models.Filter) ([]*models.Credential, error)
	GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	ListPending(ctx context.Context, ownerKind models.OwnerKind, limit int) ([]*models.Credential, error)
	History(ctx context.Context, credentialID id.CredentialID) ([]audit.Entry, error)
	OwnerHistory(ctx context.Context, owner models.OwnerRef) ([]audit.Entry, error)
	RemindMissing(ctx context.Context, owner models.OwnerRef) (*service.ReminderResult, error)
	DownloadURL(ctx context.Context, credentialID id.CredentialID) (string, time.Time, error)
	Suspend(ctx context.Context, cmd service.SuspendCommand) (*service.SuspensionResult, error)
	Lift(ctx context.Context, cmd service.LiftCommand) (*service.SuspensionResult, error)
	RunExpiryScan(ctx context.Context, now time.Time) (expiry.Result, error)
}

// Handler wires the credential lifecycle endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a credential handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the credential endpoints. The router must already run
// auth.RequireAuth; role checks happen here.
func (h *Handler) Register(r chi.Router) {
	staff := auth.RequireRole(h.logger, id.RoleReviewer, id.RoleAdmin)
	admin := auth.RequireRole(h.logger, id.RoleAdmin)

	r.Route("/owners/{ownerKind}/{ownerID}", func(r chi.Router) {
		r.Post("/credentials", h.HandleSubmit)
		r.Get("/credentials", h.HandleList)
		r.Get("/status", h.HandleStatus)
		r.With(staff).Get("/history", h.HandleOwnerHistory)
		r.With(staff).Post("/reminders", h.HandleRemind)
	})

	r.With(staff).Get("/credentials", h.HandlePending)
	r.Get("/credentials/{credentialID}", h.HandleGet)
	r.With(staff).Post("/credentials/{credentialID}/review", h.HandleReview)
	r.With(staff).Get("/credentials/{credentialID}/history", h.HandleHistory)
	r.With(staff).Get("/credentials/{credentialID}/download", h.HandleDownload)

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin)
		r.Post("/owners/{ownerID}/suspension", h.HandleSuspend)
		r.Delete("/owners/{ownerID}/suspension", h.HandleLift)
		r.Post("/expiry-scan", h.HandleExpiryScan)
	})
}

// HandleSubmit handles POST /owners/{ownerKind}/{ownerID}/credentials.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := parseOwner(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := requireSelf(requestcontext.Actor(ctx), owner); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.Submit(ctx, req.ToCommand(owner))
	if err != nil {
		h.logFailure(ctx, "failed to submit credential", err, "owner_id", owner.ID.String(), "kind", req.Kind)
		httputil.WriteError(w, err)
		return
	}

	resp := SubmitResponse{
		Credential: toCredentialResponse(result.Credential),
		Status:     toStatusResponse(result.Status),
		Warnings:   result.Warnings,
	}
	if result.Replaced != nil {
		resp.ReplacedID = result.Replaced.ID.String()
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// HandleList handles GET /owners/{ownerKind}/{ownerID}/credentials.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := parseOwner(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := requireSelfOrStaff(requestcontext.Actor(ctx), owner.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	creds, err := h.service.ListCredentials(ctx, owner, filter)
	if err != nil {
		h.logFailure(ctx, "failed to list credentials", err, "owner_id", owner.ID.String())
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{Credentials: make([]CredentialResponse, 0, len(creds))}
	for _, c := range creds {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleStatus handles GET /owners/{ownerKind}/{ownerID}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := parseOwner(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := requireSelfOrStaff(requestcontext.Actor(ctx), owner.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	status, err := h.service.GetStatus(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to compute owner status", err, "owner_id", owner.ID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

// HandlePending handles GET /credentials?status=pending, the review queue.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := parsePendingQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	creds, err := h.service.ListPending(ctx, q.OwnerKind, q.Limit)
	if err != nil {
		h.logFailure(ctx, "failed to list pending credentials", err, "owner_kind", string(q.OwnerKind))
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{Credentials: make([]CredentialResponse, 0, len(creds))}
	for _, c := range creds {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /credentials/{credentialID}. Owners only see their own.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := parseCredentialID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.GetCredential(ctx, credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := requireSelfOrStaff(requestcontext.Actor(ctx), c.OwnerID); err != nil {
		// Do not reveal that another owner's credential exists.
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(c))
}

// HandleReview handles POST /credentials/{credentialID}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := parseCredentialID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger)
	if !ok {
		return
	}

	actor := requestcontext.Actor(ctx)
	result, err := h.service.Review(ctx, service.ReviewCommand{
		CredentialID: credentialID,
		Actor:        actor,
		Decision:     models.Decision(req.Decision),
		Reason:       req.Reason,
	})
	if err != nil {
		h.logFailure(ctx, "failed to review credential", err,
			"credential_id", credentialID.String(),
			"reviewer_id", actor.ID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ReviewResponse{
		Credential:    toCredentialResponse(result.Credential),
		Status:        toStatusResponse(result.Status),
		OwnerVerified: result.OwnerVerified,
		Warnings:      result.Warnings,
	})
}

// HandleHistory handles GET /credentials/{credentialID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := parseCredentialID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(ctx, credentialID)
	if err != nil {
		h.logFailure(ctx, "failed to load credential history", err, "credential_id", credentialID.String())
		httputil.WriteError(w, err)
		return
	}

	resp := HistoryResponse{CredentialID: credentialID.String(), Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toAuditEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleOwnerHistory handles GET /owners/{ownerKind}/{ownerID}/history.
func (h *Handler) HandleOwnerHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := parseOwner(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.OwnerHistory(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to load owner history", err, "owner_id", owner.ID.String())
		httputil.WriteError(w, err)
		return
	}

	resp := OwnerHistoryResponse{OwnerID: owner.ID.String(), Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toAuditEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRemind handles POST /owners/{ownerKind}/{ownerID}/reminders.
func (h *Handler) HandleRemind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := parseOwner(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.RemindMissing(ctx, owner)
	if err != nil {
		h.logFailure(ctx, "failed to send missing credentials reminder", err, "owner_id", owner.ID.String())
		httputil.WriteError(w, err)
		return
	}

	resp := ReminderResponse{Kinds: make([]string, 0, len(result.Kinds)), Sent: result.Sent, Warnings: result.Warnings}
	for _, k := range result.Kinds {
		resp.Kinds = append(resp.Kinds, string(k))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleDownload handles GET /credentials/{credentialID}/download.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := parseCredentialID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	url, expiresAt, err := h.service.DownloadURL(ctx, credentialID)
	if err != nil {
		h.logFailure(ctx, "failed to sign download url", err, "credential_id", credentialID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DownloadResponse{URL: url, ExpiresAt: expiresAt.UTC()})
}

// HandleSuspend handles POST /admin/owners/{ownerID}/suspension.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := parseOwnerID(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SuspendRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.Suspend(ctx, service.SuspendCommand{
		Owner:  models.OwnerRef{ID: ownerID, Kind: models.OwnerKind(req.OwnerKind)},
		Actor:  requestcontext.Actor(ctx),
		Reason: req.Reason,
	})
	if err != nil {
		h.logFailure(ctx, "failed to suspend owner", err, "owner_id", ownerID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SuspensionResponse{Status: toStatusResponse(result.Status), Warnings: result.Warnings})
}

// HandleLift handles DELETE /admin/owners/{ownerID}/suspension?owner_kind=.
func (h *Handler) HandleLift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := parseOwnerID(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ownerKind, err := parseOwnerKind(r.URL.Query().Get("owner_kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Lift(ctx, service.LiftCommand{
		Owner: models.OwnerRef{ID: ownerID, Kind: ownerKind},
		Actor: requestcontext.Actor(ctx),
	})
	if err != nil {
		h.logFailure(ctx, "failed to lift suspension", err, "owner_id", ownerID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SuspensionResponse{Status: toStatusResponse(result.Status), Warnings: result.Warnings})
}

// HandleExpiryScan handles POST /admin/expiry-scan.
func (h *Handler) HandleExpiryScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.RunExpiryScan(ctx, requestcontext.Now(ctx))
	if err != nil {
		h.logFailure(ctx, "expiry scan failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScanResponse(result))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestcontext.RequestID(ctx))
	// Client mistakes are expected traffic; only server-side failures are errors.
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}

var _ Service = (*service.Service)(nil)
