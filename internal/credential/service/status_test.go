package service

import (
	"context"
	"time"

	"credlife/internal/credential/models"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
)

func (s *ServiceSuite) TestStatusOfUnknownOwnerIsNotStarted() {
	status, err := s.service.GetStatus(s.ctx(), s.deliverer())
	s.Require().NoError(err)
	s.Equal(models.OverallNotStarted, status.OverallStatus)
	s.Equal(0, status.CompletionPercentage)
	s.Len(status.MissingKinds, 4)
}

func (s *ServiceSuite) TestStatusRequiresKnownOwnerKind() {
	_, err := s.service.GetStatus(s.ctx(), models.OwnerRef{ID: id.NewOwnerID(), Kind: "courier"})
	s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation), "got %v", err)
}

func (s *ServiceSuite) TestStatusCompletionTracksApprovals() {
	owner := s.deliverer()
	for _, kind := range []models.Kind{models.KindIdentityDocument, models.KindDrivingLicense} {
		s.approve(s.submit(owner, kind, pdf(string(kind)+".pdf")).ID)
	}

	status, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallInProgress, status.OverallStatus)
	s.Equal(50, status.CompletionPercentage)
	s.ElementsMatch([]models.Kind{models.KindVehicleRegistration, models.KindInsuranceCertificate}, status.MissingKinds)
}

func (s *ServiceSuite) TestStatusIsServedFromCacheUntilInvalidated() {
	owner := s.deliverer()
	s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))

	first, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)

	cached, err := s.cache.Get(context.Background(), owner)
	s.Require().NoError(err)
	s.Equal(first.OverallStatus, cached.OverallStatus)

	// A write through the service drops the stale entry.
	creds, err := s.service.ListCredentials(s.ctx(), owner, models.Filter{})
	s.Require().NoError(err)
	s.Require().Len(creds, 1)
	s.approve(creds[0].ID)

	after, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(25, after.CompletionPercentage)
}

// An approved credential one day past its expiry is expired by the scan and
// the owner's status is recomputed.
func (s *ServiceSuite) TestExpiryScanExpiresOverdueCredential() {
	s.service = s.newService(WithPolicies(s.identityOnly()))
	owner := s.deliverer()
	cred := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	s.approve(cred.ID)

	approved := s.stored(cred.ID)
	expiresAt := s.now.Add(-24 * time.Hour)
	approved.ExpiresAt = &expiresAt
	s.Require().NoError(s.store.UpdateStatus(context.Background(), approved, approved.Version))

	res, err := s.service.RunExpiryScan(s.ctx(), s.now)
	s.Require().NoError(err)
	s.Require().Len(res.Expired, 1)
	s.Equal(cred.ID, res.Expired[0].ID)
	s.Equal(1, res.RecomputedOwners)
	s.Empty(res.Failures)

	s.Equal(models.StatusExpired, s.stored(cred.ID).Status)
	s.Len(s.notifier.OfType(notification.CredentialExpired), 1)

	status, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallInProgress, status.OverallStatus)
	s.Equal(0, status.CompletionPercentage)
	s.Empty(status.MissingKinds, "an expired record still counts as submitted")

	entries := s.auditStore.All()
	last := entries[len(entries)-1]
	s.Equal(models.AuditActionExpired, last.Action)
	s.Equal(id.RoleSystem, last.ActorRole)

	again, err := s.service.RunExpiryScan(s.ctx(), s.now)
	s.Require().NoError(err)
	s.Empty(again.Expired)
}

func (s *ServiceSuite) TestExpiryScanWarnsOnceInsideWindow() {
	owner := s.deliverer()
	cred := s.submit(owner, models.KindInsuranceCertificate, pdf("insurance.pdf"))
	s.approve(cred.ID)

	// The approval is valid 365 days; move close to the end of it.
	later := s.now.Add(350 * 24 * time.Hour)
	res, err := s.service.RunExpiryScan(s.ctxAt(later), later)
	s.Require().NoError(err)
	s.Len(res.ExpiringSoon, 1)
	s.Empty(res.Expired)
	s.Len(s.notifier.OfType(notification.CredentialExpiring), 1)
	s.NotNil(s.stored(cred.ID).ExpiryNotifiedAt)

	res, err = s.service.RunExpiryScan(s.ctxAt(later), later.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(res.ExpiringSoon)
	s.Len(s.notifier.OfType(notification.CredentialExpiring), 1)
}

func (s *ServiceSuite) TestListCredentialsFilters() {
	owner := s.deliverer()
	id1 := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	s.approve(id1.ID)
	s.submit(owner, models.KindIdentityDocument, pdf("id-2.pdf"))
	s.submit(owner, models.KindDrivingLicense, pdf("license.pdf"))

	all, err := s.service.ListCredentials(s.ctx(), owner, models.Filter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	withHistory, err := s.service.ListCredentials(s.ctx(), owner, models.Filter{IncludeReplaced: true})
	s.Require().NoError(err)
	s.Len(withHistory, 3)

	licenses, err := s.service.ListCredentials(s.ctx(), owner, models.Filter{Kinds: []models.Kind{models.KindDrivingLicense}})
	s.Require().NoError(err)
	s.Require().Len(licenses, 1)
	s.Equal(models.KindDrivingLicense, licenses[0].Kind)

	replaced, err := s.service.ListCredentials(s.ctx(), owner, models.Filter{Statuses: []models.Status{models.StatusReplaced}})
	s.Require().NoError(err)
	s.Require().Len(replaced, 1)
	s.Equal(id1.ID, replaced[0].ID)

	_, err = s.service.ListCredentials(s.ctx(), owner, models.Filter{Statuses: []models.Status{"archived"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestHistoryOfUnknownCredentialIsNotFound() {
	_, err := s.service.History(s.ctx(), id.NewCredentialID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDownloadURLWithoutSignerIsNotFound() {
	c := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("id.pdf"))
	_, _, err := s.service.DownloadURL(s.ctx(), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
