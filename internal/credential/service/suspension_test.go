package service

import (
	"credlife/internal/credential/models"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

func (s *ServiceSuite) TestSuspensionOverridesVerifiedUntilLifted() {
	s.service = s.newService(WithPolicies(s.identityOnly()))
	owner := s.deliverer()
	s.approve(s.submit(owner, models.KindIdentityDocument, pdf("id.pdf")).ID)

	res, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.admin, Reason: "fraud investigation"})
	s.Require().NoError(err)
	s.Equal(models.OverallSuspended, res.Status.OverallStatus)
	s.Equal(100, res.Status.CompletionPercentage)
	s.Len(s.notifier.OfType(notification.OwnerSuspended), 1)

	status, err := s.service.GetStatus(s.ctx(), owner)
	s.Require().NoError(err)
	s.Equal(models.OverallSuspended, status.OverallStatus)

	lifted, err := s.service.Lift(s.ctx(), LiftCommand{Owner: owner, Actor: s.admin})
	s.Require().NoError(err)
	s.Equal(models.OverallVerified, lifted.Status.OverallStatus)
	s.Len(s.notifier.OfType(notification.OwnerVerified), 2)

	entries := s.auditStore.All()
	s.Equal(models.AuditActionSuspended, entries[len(entries)-2].Action)
	s.Equal("fraud investigation", entries[len(entries)-2].Reason)
	s.Equal(models.AuditActionLifted, entries[len(entries)-1].Action)
}

func (s *ServiceSuite) TestSuspendRequiresAdmin() {
	owner := s.deliverer()
	_, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.reviewer, Reason: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: requestcontext.AuthenticatedActor{}, Reason: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Lift(s.ctx(), LiftCommand{Owner: owner, Actor: requestcontext.AuthenticatedActor{ID: id.ActorID(owner.ID), Role: id.RoleOwner}})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestSuspendTwiceConflicts() {
	owner := s.deliverer()
	_, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.admin, Reason: "chargebacks"})
	s.Require().NoError(err)

	_, err = s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.admin, Reason: "chargebacks"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestSuspendRequiresReason() {
	_, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: s.deliverer(), Actor: s.admin, Reason: " "})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestLiftWithoutSuspensionIsNotFound() {
	_, err := s.service.Lift(s.ctx(), LiftCommand{Owner: s.deliverer(), Actor: s.admin})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSuspendedOwnerCanStillSubmit() {
	owner := s.deliverer()
	_, err := s.service.Suspend(s.ctx(), SuspendCommand{Owner: owner, Actor: s.admin, Reason: "review"})
	s.Require().NoError(err)

	res, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id.pdf")})
	s.Require().NoError(err)
	s.Equal(models.OverallSuspended, res.Status.OverallStatus)
}
