package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/store"
	"credlife/internal/notification"
	id "credlife/pkg/domain"
)

type fakeRefresher struct {
	mu     sync.Mutex
	owners []id.OwnerID
	fail   map[id.OwnerID]bool
}

func (f *fakeRefresher) RefreshOwner(_ context.Context, owner models.OwnerRef, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[owner.ID] {
		return errors.New("status store unavailable")
	}
	f.owners = append(f.owners, owner.ID)
	return nil
}

// flakyStore fails UpdateStatus for selected credentials.
type flakyStore struct {
	*store.InMemoryStore
	failUpdate map[id.CredentialID]error
}

func (f *flakyStore) UpdateStatus(ctx context.Context, c *models.Credential, expectedVersion int64) error {
	if err := f.failUpdate[c.ID]; err != nil {
		return err
	}
	return f.InMemoryStore.UpdateStatus(ctx, c, expectedVersion)
}

// flakyNotifier fails the next failures calls, then records.
type flakyNotifier struct {
	*notification.Recorder
	failures int
}

func (f *flakyNotifier) Notify(ctx context.Context, event notification.Event) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("outbox unavailable")
	}
	return f.Recorder.Notify(ctx, event)
}

type failingAuditor struct{}

func (failingAuditor) Record(context.Context, audit.Entry) error { return errors.New("audit down") }

type ScannerSuite struct {
	suite.Suite
	store     *flakyStore
	audit     *audit.InMemoryStore
	notifier  *notification.Recorder
	refresher *fakeRefresher
	scanner   *Scanner
	now       time.Time
}

func TestScannerSuite(t *testing.T) {
	suite.Run(t, new(ScannerSuite))
}

func (s *ScannerSuite) SetupTest() {
	s.store = &flakyStore{InMemoryStore: store.NewInMemory(), failUpdate: map[id.CredentialID]error{}}
	s.audit = audit.NewInMemoryStore()
	s.notifier = notification.NewRecorder()
	s.refresher = &fakeRefresher{fail: map[id.OwnerID]bool{}}
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.scanner = New(s.store, audit.NewRecorder(s.audit), s.notifier, s.refresher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *ScannerSuite) approved(kind models.Kind, expiresAt time.Time) *models.Credential {
	owner := models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerDeliverer}
	c, err := models.NewCredential(id.NewCredentialID(), owner, kind,
		models.FileRef{URI: "s3://creds/" + string(kind), MimeType: "application/pdf", SizeBytes: 10},
		expiresAt.Add(-365*24*time.Hour))
	s.Require().NoError(err)
	c.Status = models.StatusApproved
	c.ExpiresAt = &expiresAt
	s.Require().NoError(s.store.Insert(context.Background(), c))
	return c
}

func (s *ScannerSuite) TestExpiresPastDueCredential() {
	c := s.approved(models.KindIdentityDocument, s.now.Add(-24*time.Hour))

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Require().Len(res.Expired, 1)
	s.Empty(res.Failures)
	s.Equal(1, res.RecomputedOwners)

	stored, err := s.store.Get(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
	s.Equal(c.Version+1, stored.Version)

	s.Len(s.notifier.OfType(notification.CredentialExpired), 1)
	entries := s.audit.All()
	s.Require().Len(entries, 1)
	s.Equal(models.AuditActionExpired, entries[0].Action)
	s.Equal(models.StatusApproved, entries[0].OldStatus)
	s.Equal(models.StatusExpired, entries[0].NewStatus)
	s.Equal(id.SystemActorID, entries[0].ActorID)
	s.Equal(id.RoleSystem, entries[0].ActorRole)
	s.Equal([]id.OwnerID{c.OwnerID}, s.refresher.owners)
}

func (s *ScannerSuite) TestExpiryExactlyAtNowCounts() {
	s.approved(models.KindIdentityDocument, s.now)
	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(res.Expired, 1)
}

func (s *ScannerSuite) TestReportsExpiringSoonOnce() {
	c := s.approved(models.KindDrivingLicense, s.now.Add(10*24*time.Hour))
	s.approved(models.KindInsuranceCertificate, s.now.Add(90*24*time.Hour))

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Require().Len(res.ExpiringSoon, 1)
	s.Equal(c.ID, res.ExpiringSoon[0].ID)
	s.Empty(res.Expired)
	s.Zero(res.RecomputedOwners)

	again, err := s.scanner.Scan(context.Background(), s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(again.ExpiringSoon)
	s.Len(s.notifier.OfType(notification.CredentialExpiring), 1)

	stored, err := s.store.Get(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status)
	s.NotNil(stored.ExpiryNotifiedAt)
}

func (s *ScannerSuite) TestBatchLimitDoesNotStarveLaterCredentials() {
	s.scanner = New(s.store, audit.NewRecorder(s.audit), s.notifier, s.refresher,
		WithBatchSize(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.approved(models.KindIdentityDocument, s.now.Add(2*24*time.Hour))
	s.approved(models.KindDrivingLicense, s.now.Add(3*24*time.Hour))
	last := s.approved(models.KindInsuranceCertificate, s.now.Add(10*24*time.Hour))

	first, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(first.ExpiringSoon, 2)

	second, err := s.scanner.Scan(context.Background(), s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Len(second.ExpiringSoon, 1)
	s.Equal(last.ID, second.ExpiringSoon[0].ID)
	s.Len(s.notifier.OfType(notification.CredentialExpiring), 3)
}

func (s *ScannerSuite) TestFailedWarningIsRetriedNextScan() {
	notifier := &flakyNotifier{Recorder: s.notifier, failures: 1}
	s.scanner = New(s.store, audit.NewRecorder(s.audit), notifier, s.refresher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	c := s.approved(models.KindDrivingLicense, s.now.Add(5*24*time.Hour))

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Empty(res.ExpiringSoon)
	s.Require().Len(res.Failures, 1)
	s.Equal("notify", res.Failures[0].Stage)

	stored, err := s.store.Get(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Nil(stored.ExpiryNotifiedAt)

	retry, err := s.scanner.Scan(context.Background(), s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Len(retry.ExpiringSoon, 1)
	s.Equal(c.ID, retry.ExpiringSoon[0].ID)
	s.Len(s.notifier.OfType(notification.CredentialExpiring), 1)
}

func (s *ScannerSuite) TestScanIsIdempotent() {
	s.approved(models.KindIdentityDocument, s.now.Add(-time.Hour))
	s.approved(models.KindDrivingLicense, s.now.Add(24*time.Hour))

	first, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(first.Expired, 1)
	s.Len(first.ExpiringSoon, 1)
	auditCount := len(s.audit.All())
	eventCount := len(s.notifier.Events())

	second, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Empty(second.Expired)
	s.Empty(second.ExpiringSoon)
	s.Empty(second.Failures)
	s.Len(s.audit.All(), auditCount)
	s.Len(s.notifier.Events(), eventCount)
}

func (s *ScannerSuite) TestFailureDoesNotAbortScan() {
	broken := s.approved(models.KindIdentityDocument, s.now.Add(-2*time.Hour))
	ok := s.approved(models.KindDrivingLicense, s.now.Add(-time.Hour))
	s.store.failUpdate[broken.ID] = store.ErrConcurrentModification

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Require().Len(res.Expired, 1)
	s.Equal(ok.ID, res.Expired[0].ID)
	s.Require().Len(res.Failures, 1)
	s.Equal(broken.ID, res.Failures[0].CredentialID)
	s.ErrorIs(res.Err(), store.ErrConcurrentModification)
}

func (s *ScannerSuite) TestRecomputeFailureIsCollected() {
	c := s.approved(models.KindIdentityDocument, s.now.Add(-time.Hour))
	s.refresher.fail[c.OwnerID] = true

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(res.Expired, 1)
	s.Zero(res.RecomputedOwners)
	s.Require().Len(res.Failures, 1)
	s.Equal("recompute", res.Failures[0].Stage)
}

func (s *ScannerSuite) TestAuditFailureIsWarningOnly() {
	s.scanner = New(s.store, failingAuditor{}, s.notifier, s.refresher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	c := s.approved(models.KindIdentityDocument, s.now.Add(-time.Hour))

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(res.Expired, 1)
	s.Empty(res.Failures)
	s.Len(res.Warnings, 1)

	stored, err := s.store.Get(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
}

func (s *ScannerSuite) TestCustomWarningWindow() {
	s.scanner = New(s.store, audit.NewRecorder(s.audit), s.notifier, s.refresher,
		WithWarningWindow(48*time.Hour),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.approved(models.KindDrivingLicense, s.now.Add(10*24*time.Hour))
	s.approved(models.KindIdentityDocument, s.now.Add(24*time.Hour))

	res, err := s.scanner.Scan(context.Background(), s.now)
	s.Require().NoError(err)
	s.Len(res.ExpiringSoon, 1)
}

func (s *ScannerSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	sc := New(s.store, audit.NewRecorder(s.audit), s.notifier, s.refresher, WithInterval(10*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	done := make(chan error, 1)
	go func() { done <- sc.Start(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}
