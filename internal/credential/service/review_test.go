package service

import (
	"errors"
	"time"

	"credlife/internal/credential/lifecycle"
	"credlife/internal/credential/models"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

// Owner submits, reviewer approves, owner renews and the owner drops back to
// in progress until the renewal is approved.
func (s *ServiceSuite) TestApproveThenRenewScenario() {
	s.service = s.newService(WithPolicies(s.identityOnly()))
	owner := s.deliverer()

	cred1 := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	s.Equal(models.StatusPending, cred1.Status)

	res := s.approve(cred1.ID)
	s.Equal(models.StatusApproved, res.Credential.Status)
	s.Equal(100, res.Status.CompletionPercentage)
	s.Equal(models.OverallVerified, res.Status.OverallStatus)
	s.True(res.OwnerVerified)
	s.Len(s.notifier.OfType(notification.OwnerVerified), 1)

	renewal, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id-renewed.pdf")})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, renewal.Credential.Status)
	s.Equal(models.StatusReplaced, s.stored(cred1.ID).Status)
	s.Equal(models.OverallInProgress, renewal.Status.OverallStatus)

	status, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallInProgress, status.OverallStatus)
	s.Equal(0, status.CompletionPercentage)

	again := s.approve(renewal.Credential.ID)
	s.Equal(models.OverallVerified, again.Status.OverallStatus)
	s.True(again.OwnerVerified)
}

func (s *ServiceSuite) TestAdminCanReview() {
	c := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("id.pdf"))

	res, err := s.service.Review(s.ctx(), ReviewCommand{
		CredentialID: c.ID, Actor: s.admin, Decision: models.DecisionReject, Reason: "photo is unreadable",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, res.Credential.Status)
	s.Equal(s.admin.ID, *res.Credential.ReviewerID)

	history, err := s.service.History(s.ctx(), c.ID)
	s.Require().NoError(err)
	s.Equal(id.RoleAdmin, history[len(history)-1].ActorRole)
}

func (s *ServiceSuite) TestApprovalExpiryUsesKindValidity() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindInsuranceCertificate, pdf("insurance.pdf"))

	res := s.approve(c.ID)
	s.Require().NotNil(res.Credential.ExpiresAt)
	s.Equal(s.now.Add(365*24*time.Hour), *res.Credential.ExpiresAt)
	s.Equal(s.reviewer.ID, *res.Credential.ReviewerID)
	s.Equal(s.now, *res.Credential.ReviewedAt)
}

func (s *ServiceSuite) TestApprovalExpiryCappedByDocumentExpiry() {
	owner := s.deliverer()
	docExpiry := s.now.Add(30 * 24 * time.Hour)
	res, err := s.service.Submit(s.ctx(), SubmitCommand{
		Owner: owner, Kind: models.KindInsuranceCertificate, File: pdf("insurance.pdf"), DocumentExpiresAt: &docExpiry,
	})
	s.Require().NoError(err)

	approved := s.approve(res.Credential.ID)
	s.Equal(docExpiry, *approved.Credential.ExpiresAt)
}

func (s *ServiceSuite) TestApprovalWithoutValidityNeverExpires() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	s.Nil(s.approve(c.ID).Credential.ExpiresAt)
}

func (s *ServiceSuite) TestRejectRequiresReason() {
	c := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("id.pdf"))
	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: s.reviewer, Decision: models.DecisionReject, Reason: "  "})
	s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation))
	s.Equal(models.StatusPending, s.stored(c.ID).Status)
}

func (s *ServiceSuite) TestRejectRecordsReasonAndMarksOwnerRejected() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))

	res, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: s.reviewer, Decision: models.DecisionReject, Reason: "photo unreadable"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, res.Credential.Status)
	s.Equal("photo unreadable", res.Credential.RejectionReason)
	s.Equal(models.OverallRejected, res.Status.OverallStatus)
	s.Contains(res.Status.MissingKinds, models.KindIdentityDocument)
	s.Len(s.notifier.OfType(notification.CredentialRejected), 1)

	entries := s.auditStore.All()
	last := entries[len(entries)-1]
	s.Equal(models.AuditActionRejected, last.Action)
	s.Equal("photo unreadable", last.Reason)
	s.Equal(id.RoleReviewer, last.ActorRole)
}

func (s *ServiceSuite) TestReviewOfNonPendingIsInvalidTransition() {
	c := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("id.pdf"))
	s.approve(c.ID)

	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: s.reviewer, Decision: models.DecisionReject, Reason: "late"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	var terr *lifecycle.TransitionError
	s.Require().True(errors.As(err, &terr))
	s.Equal(models.StatusApproved, terr.Current)
	s.Equal(models.StatusRejected, terr.Requested)
}

func (s *ServiceSuite) TestReviewByOwnerRoleIsInvalidTransition() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	self := requestcontext.AuthenticatedActor{ID: id.ActorID(owner.ID), Role: id.RoleOwner}

	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: self, Decision: models.DecisionApprove})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestReviewUnknownCredentialIsNotFound() {
	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: id.NewCredentialID(), Actor: s.reviewer, Decision: models.DecisionApprove})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestReviewRejectsUnknownDecision() {
	c := s.submit(s.deliverer(), models.KindIdentityDocument, pdf("id.pdf"))
	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: s.reviewer, Decision: "maybe"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestAuditTrailReconstructsHistory() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))
	s.approve(c.ID)
	s.submit(owner, models.KindIdentityDocument, pdf("id-2.pdf"))

	history, err := s.service.History(s.ctx(), c.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)

	status := models.StatusNone
	for _, e := range history {
		s.Equal(status, e.OldStatus, "entry %s does not continue the chain", e.Action)
		s.True(lifecycle.Allowed(e.OldStatus, e.NewStatus, e.ActorRole))
		status = e.NewStatus
	}
	s.Equal(s.stored(c.ID).Status, status)
}
