package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/store"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
)

// racingStore runs during once, right after the next ListByOwner has read
// its snapshot.
type racingStore struct {
	*store.InMemoryStore
	during func()
}

func (r *racingStore) ListByOwner(ctx context.Context, ownerID id.OwnerID, filter models.Filter) ([]*models.Credential, error) {
	creds, err := r.InMemoryStore.ListByOwner(ctx, ownerID, filter)
	if hook := r.during; hook != nil {
		r.during = nil
		hook()
	}
	return creds, err
}

func (s *ServiceSuite) TestStatusReadOverlappingReviewDoesNotCacheOldStatus() {
	racing := &racingStore{InMemoryStore: s.store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(racing, s.suspensions, audit.NewRecorder(s.auditStore), s.notifier,
		WithLogger(logger), WithCache(s.cache), WithPolicies(s.identityOnly()))
	owner := s.deliverer()

	submitted, err := svc.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id.pdf")})
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Invalidate(context.Background(), owner.ID))

	racing.during = func() {
		res, err := svc.Review(s.ctx(), ReviewCommand{
			CredentialID: submitted.Credential.ID, Actor: s.reviewer, Decision: models.DecisionApprove,
		})
		s.Require().NoError(err)
		s.Equal(models.OverallVerified, res.Status.OverallStatus)
	}
	during, err := svc.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallInProgress, during.OverallStatus)

	after, err := svc.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallVerified, after.OverallStatus)
	s.Equal(100, after.CompletionPercentage)
}

func (s *ServiceSuite) TestListPendingIsReviewQueueAcrossOwners() {
	older := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("a.pdf"))
	newer, err := s.service.Submit(s.ctxAt(s.now.Add(time.Minute)), SubmitCommand{
		Owner: s.deliverer(), Kind: models.KindDrivingLicense, File: pdf("b.pdf"),
	})
	s.Require().NoError(err)
	reviewed := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("c.pdf"))
	s.approve(reviewed.ID)

	queue, err := s.service.ListPending(s.ctx(), models.OwnerDeliverer, 0)
	s.Require().NoError(err)
	s.Require().Len(queue, 2)
	s.Equal(newer.Credential.ID, queue[0].ID)
	s.Equal(older.ID, queue[1].ID)

	merchants, err := s.service.ListPending(s.ctx(), models.OwnerMerchant, 10)
	s.Require().NoError(err)
	s.Empty(merchants)

	_, err = s.service.ListPending(s.ctx(), "courier", 10)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

func (s *ServiceSuite) TestOwnerHistoryIncludesSuspension() {
	owner := s.deliverer()
	s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	_, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.admin, Reason: "chargeback review"})
	s.Require().NoError(err)

	entries, err := s.service.OwnerHistory(s.ctx(), owner)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(models.AuditActionSubmitted, entries[0].Action)
	s.Equal(models.AuditActionSuspended, entries[1].Action)
	s.Equal("chargeback review", entries[1].Reason)
}

func (s *ServiceSuite) TestRemindMissingListsKindsWithoutUsableRecord() {
	owner := s.deliverer()
	s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	license := s.submit(owner, models.KindDrivingLicense, pdf("license.pdf"))
	_, err := s.service.Review(s.ctx(), ReviewCommand{
		CredentialID: license.ID, Actor: s.reviewer, Decision: models.DecisionReject, Reason: "expired licence",
	})
	s.Require().NoError(err)

	res, err := s.service.RemindMissing(s.ctx(), owner)
	s.Require().NoError(err)
	s.True(res.Sent)
	s.Equal([]models.Kind{models.KindDrivingLicense, models.KindVehicleRegistration, models.KindInsuranceCertificate}, res.Kinds)

	events := s.notifier.OfType(notification.CredentialsMissing)
	s.Require().Len(events, 1)
	s.Equal(owner.ID.String(), events[0].OwnerID)
	s.Equal(res.Kinds, events[0].Kinds)
}

func (s *ServiceSuite) TestRemindMissingCountsExpiredApprovals() {
	owner := s.deliverer()
	insurance := s.submit(owner, models.KindInsuranceCertificate, pdf("insurance.pdf"))
	s.approve(insurance.ID)

	later := s.now.Add(366 * 24 * time.Hour)
	res, err := s.service.RemindMissing(s.ctxAt(later), owner)
	s.Require().NoError(err)
	s.Contains(res.Kinds, models.KindInsuranceCertificate)
}

func (s *ServiceSuite) TestRemindMissingSendsNothingWhenComplete() {
	s.service = s.newService(WithPolicies(s.identityOnly()))
	owner := s.deliverer()
	s.approve(s.submit(owner, models.KindIdentityDocument, pdf("id.pdf")).ID)

	res, err := s.service.RemindMissing(s.ctx(), owner)
	s.Require().NoError(err)
	s.False(res.Sent)
	s.Empty(res.Kinds)
	s.Empty(s.notifier.OfType(notification.CredentialsMissing))
}
