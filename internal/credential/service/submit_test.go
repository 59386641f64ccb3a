package service

import (
	"context"
	"time"

	"credlife/internal/credential/models"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
)

func (s *ServiceSuite) TestSubmitCreatesPendingCredential() {
	owner := s.deliverer()
	res, err := s.service.Submit(s.ctx(), SubmitCommand{
		Owner:    owner,
		Kind:     models.KindDrivingLicense,
		File:     pdf("license.pdf"),
		Metadata: map[string]string{"country": "FR"},
	})
	s.Require().NoError(err)
	s.Empty(res.Warnings)
	s.Nil(res.Replaced)

	c := res.Credential
	s.Equal(models.StatusPending, c.Status)
	s.Equal(s.now, c.SubmittedAt)
	s.Equal("FR", c.Metadata["country"])
	s.Equal(models.OverallInProgress, res.Status.OverallStatus)

	stored := s.stored(c.ID)
	s.Equal(models.StatusPending, stored.Status)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal(models.AuditActionSubmitted, entries[0].Action)
	s.Equal(models.StatusNone, entries[0].OldStatus)
	s.Equal(models.StatusPending, entries[0].NewStatus)
	s.Equal(id.ActorID(owner.ID), entries[0].ActorID)
	s.Len(s.notifier.OfType(notification.CredentialSubmitted), 1)
}

func (s *ServiceSuite) TestSubmitRejectsPolicyViolations() {
	owner := s.deliverer()
	past := s.now.Add(-time.Hour)
	cases := map[string]SubmitCommand{
		"kind not in owner policy": {Owner: owner, Kind: models.KindCertificationExam, File: pdf("exam.pdf")},
		"unknown owner kind":       {Owner: models.OwnerRef{ID: owner.ID, Kind: "courier"}, Kind: models.KindIdentityDocument, File: pdf("id.pdf")},
		"oversized file":           {Owner: owner, Kind: models.KindIdentityDocument, File: models.FileRef{URI: "s3://creds/big.pdf", MimeType: "application/pdf", SizeBytes: 50 << 20}},
		"unsupported format":       {Owner: owner, Kind: models.KindIdentityDocument, File: models.FileRef{URI: "s3://creds/id.gif", MimeType: "image/gif", SizeBytes: 100}},
		"document already expired": {Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id.pdf"), DocumentExpiresAt: &past},
	}
	for name, cmd := range cases {
		_, err := s.service.Submit(s.ctx(), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation), "%s: got %v", name, err)
	}
	creds, err := s.store.ListByOwner(context.Background(), owner.ID, models.Filter{IncludeReplaced: true})
	s.Require().NoError(err)
	s.Empty(creds)
	s.Empty(s.auditStore.All())
}

func (s *ServiceSuite) TestSubmitCertificationExamRequiresResult() {
	owner := models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerProvider}
	_, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindCertificationExam, File: pdf("exam.pdf")})
	s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation))

	res, err := s.service.Submit(s.ctx(), SubmitCommand{
		Owner:      owner,
		Kind:       models.KindCertificationExam,
		File:       pdf("exam.pdf"),
		ExamResult: &models.ExamResult{GraderRef: "grader-7", Score: 82, PassScore: 70, Passed: true, GradedAt: s.now},
	})
	s.Require().NoError(err)
	s.Equal(82, res.Credential.ExamResult.Score)
}

func (s *ServiceSuite) TestSubmitSameFileWhilePendingIsDuplicate() {
	owner := s.deliverer()
	s.submit(owner, models.KindIdentityDocument, pdf("id.pdf"))

	_, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id.pdf")})
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateActive), "got %v", err)
}

func (s *ServiceSuite) TestResubmitReplacesPendingCredential() {
	owner := s.deliverer()
	first := s.submit(owner, models.KindIdentityDocument, pdf("id-v1.pdf"))

	res, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("id-v2.pdf")})
	s.Require().NoError(err)
	s.Require().NotNil(res.Replaced)
	s.Equal(first.ID, res.Replaced.ID)

	old := s.stored(first.ID)
	s.Equal(models.StatusReplaced, old.Status)
	s.Equal(res.Credential.ID, *old.SupersededByID)
	s.Equal(first.ID, *res.Credential.SupersedesID)
}

func (s *ServiceSuite) TestSingleActiveInvariantHoldsAcrossResubmissions() {
	owner := s.deliverer()
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"} {
		c := s.submit(owner, models.KindDrivingLicense, pdf(name))
		if i%2 == 0 {
			s.approve(c.ID)
		}
	}
	creds, err := s.store.ListByOwner(context.Background(), owner.ID, models.Filter{IncludeReplaced: true})
	s.Require().NoError(err)
	s.Len(creds, 4)
	active := 0
	for _, c := range creds {
		if c.Status.IsActive() {
			active++
		}
	}
	s.Equal(1, active)
}

func (s *ServiceSuite) TestResubmitAfterRejectionReplacesIt() {
	owner := s.deliverer()
	c := s.submit(owner, models.KindIdentityDocument, pdf("blurry.pdf"))
	_, err := s.service.Review(s.ctx(), ReviewCommand{CredentialID: c.ID, Actor: s.reviewer, Decision: models.DecisionReject, Reason: "blurry"})
	s.Require().NoError(err)

	res, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: owner, Kind: models.KindIdentityDocument, File: pdf("blurry.pdf")})
	s.Require().NoError(err)
	s.Equal(models.StatusReplaced, s.stored(c.ID).Status)
	s.Equal(models.StatusPending, res.Credential.Status)

	entries := s.auditStore.All()
	s.Equal(models.AuditActionReplaced, entries[len(entries)-2].Action)
	s.Equal(models.StatusRejected, entries[len(entries)-2].OldStatus)
}

func (s *ServiceSuite) TestSubmitRequiresOwnerID() {
	_, err := s.service.Submit(s.ctx(), SubmitCommand{Owner: models.OwnerRef{Kind: models.OwnerDeliverer}, Kind: models.KindIdentityDocument, File: pdf("id.pdf")})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
