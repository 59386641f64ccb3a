package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var credentialColumns = []string{
	"id", "owner_id", "owner_kind", "kind", "status",
	"file_uri", "file_mime_type", "file_size_bytes", "metadata",
	"document_expires_at", "exam_result", "submitted_at", "reviewed_at", "expires_at",
	"reviewer_id", "rejection_reason", "supersedes_id", "superseded_by_id",
	"expiry_notified_at", "version",
}

// PostgresStore persists credentials in PostgreSQL. Status updates carry a
// version precondition so concurrent writers cannot both win.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) Get(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	return s.getOne(ctx, s.db, psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{"id": uuid.UUID(credentialID)}))
}

func (s *PostgresStore) FindActive(ctx context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error) {
	return s.getOne(ctx, s.db, psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{
			"owner_id": uuid.UUID(ownerID),
			"kind":     string(kind),
			"status":   []string{string(models.StatusPending), string(models.StatusApproved)},
		}).
		OrderBy("submitted_at DESC").Limit(1))
}

func (s *PostgresStore) FindCurrent(ctx context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error) {
	return s.getOne(ctx, s.db, psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{"owner_id": uuid.UUID(ownerID), "kind": string(kind)}).
		Where(sq.NotEq{"status": string(models.StatusReplaced)}).
		OrderBy("submitted_at DESC").Limit(1))
}

func (s *PostgresStore) getOne(ctx context.Context, exec dbExecutor, q sq.SelectBuilder) (*models.Credential, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build credential query: %w", err)
	}
	c, err := scanCredential(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID, filter models.Filter) ([]*models.Credential, error) {
	q := psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{"owner_id": uuid.UUID(ownerID)}).
		OrderBy("submitted_at ASC")
	if len(filter.Kinds) > 0 {
		q = q.Where(sq.Eq{"kind": toStrings(filter.Kinds)})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(sq.Eq{"status": toStrings(filter.Statuses)})
	} else if !filter.IncludeReplaced {
		q = q.Where(sq.NotEq{"status": string(models.StatusReplaced)})
	}
	return s.list(ctx, q)
}

func (s *PostgresStore) ListApprovedExpiringBefore(ctx context.Context, now, horizon time.Time, limit int) ([]*models.Credential, error) {
	q := psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{"status": string(models.StatusApproved)}).
		Where(sq.LtOrEq{"expires_at": horizon}).
		Where(sq.Or{sq.LtOrEq{"expires_at": now}, sq.Eq{"expiry_notified_at": nil}}).
		OrderBy("expires_at ASC")
	return s.list(ctx, withLimit(q, limit))
}

func (s *PostgresStore) ListPending(ctx context.Context, ownerKind models.OwnerKind, limit int) ([]*models.Credential, error) {
	q := psql.Select(credentialColumns...).From("credentials").
		Where(sq.Eq{"status": string(models.StatusPending)}).
		OrderBy("submitted_at DESC")
	if ownerKind != "" {
		q = q.Where(sq.Eq{"owner_kind": string(ownerKind)})
	}
	return s.list(ctx, withLimit(q, limit))
}

func withLimit(q sq.SelectBuilder, limit int) sq.SelectBuilder {
	if limit > 0 {
		return q.Limit(uint64(limit)) // #nosec G115 -- limit is positive
	}
	return q
}

func (s *PostgresStore) list(ctx context.Context, q sq.SelectBuilder) ([]*models.Credential, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build credential query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *models.Credential) error {
	if c.Version == 0 {
		c.Version = 1
	}
	return s.insert(ctx, s.db, c)
}

func (s *PostgresStore) insert(ctx context.Context, exec dbExecutor, c *models.Credential) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	exam, err := encodeExam(c.ExamResult)
	if err != nil {
		return err
	}
	var examArg any
	if exam != nil {
		examArg = json.RawMessage(exam)
	}
	query, args, err := psql.Insert("credentials").Columns(credentialColumns...).Values(
		uuid.UUID(c.ID), uuid.UUID(c.OwnerID), string(c.OwnerKind), string(c.Kind), string(c.Status),
		c.File.URI, c.File.MimeType, c.File.SizeBytes, json.RawMessage(metadata),
		c.DocumentExpiresAt, examArg, c.SubmittedAt, c.ReviewedAt, c.ExpiresAt,
		nullActor(c.ReviewerID), c.RejectionReason, nullCredential(c.SupersedesID), nullCredential(c.SupersededByID),
		c.ExpiryNotifiedAt, c.Version,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, c *models.Credential, expectedVersion int64) error {
	if err := s.update(ctx, s.db, c, expectedVersion); err != nil {
		return err
	}
	c.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) update(ctx context.Context, exec dbExecutor, c *models.Credential, expectedVersion int64) error {
	query, args, err := psql.Update("credentials").
		Set("status", string(c.Status)).
		Set("reviewed_at", c.ReviewedAt).
		Set("expires_at", c.ExpiresAt).
		Set("reviewer_id", nullActor(c.ReviewerID)).
		Set("rejection_reason", c.RejectionReason).
		Set("superseded_by_id", nullCredential(c.SupersededByID)).
		Set("expiry_notified_at", c.ExpiryNotifiedAt).
		Set("version", expectedVersion+1).
		Where(sq.Eq{"id": uuid.UUID(c.ID), "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update credential: %w", err)
	}
	return s.checkAffected(ctx, exec, res, c.ID)
}

// checkAffected distinguishes a missing row from a lost version race.
func (s *PostgresStore) checkAffected(ctx context.Context, exec dbExecutor, res sql.Result, credentialID id.CredentialID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, uuid.UUID(credentialID)).Scan(&exists); err != nil {
		return fmt.Errorf("check credential exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

func (s *PostgresStore) Replace(ctx context.Context, prior *models.Credential, priorVersion int64, next *models.Credential) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback after failure
		}
	}()

	if err = s.update(ctx, tx, prior, priorVersion); err != nil {
		return err
	}
	if next.Version == 0 {
		next.Version = 1
	}
	if err = s.insert(ctx, tx, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	prior.Version = priorVersion + 1
	return nil
}

func (s *PostgresStore) MarkExpiryNotified(ctx context.Context, credentialID id.CredentialID, expectedVersion int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET expiry_notified_at = $1, version = version + 1
		WHERE id = $2 AND version = $3
	`, at, uuid.UUID(credentialID), expectedVersion)
	if err != nil {
		return fmt.Errorf("mark expiry notified: %w", err)
	}
	return s.checkAffected(ctx, s.db, res, credentialID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c                               models.Credential
		rawID, ownerID                  uuid.UUID
		ownerKind, kind, status         string
		metadata, exam                  []byte
		documentExpiresAt, reviewedAt   sql.NullTime
		expiresAt, expiryNotifiedAt     sql.NullTime
		reviewerID, supersedes, nextRef uuid.NullUUID
	)
	if err := row.Scan(
		&rawID, &ownerID, &ownerKind, &kind, &status,
		&c.File.URI, &c.File.MimeType, &c.File.SizeBytes, &metadata,
		&documentExpiresAt, &exam, &c.SubmittedAt, &reviewedAt, &expiresAt,
		&reviewerID, &c.RejectionReason, &supersedes, &nextRef,
		&expiryNotifiedAt, &c.Version,
	); err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(rawID)
	c.OwnerID = id.OwnerID(ownerID)
	c.OwnerKind = models.OwnerKind(ownerKind)
	c.Kind = models.Kind(kind)
	c.Status = models.Status(status)
	c.Metadata = map[string]string{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(exam) > 0 {
		var result models.ExamResult
		if err := json.Unmarshal(exam, &result); err != nil {
			return nil, fmt.Errorf("decode exam result: %w", err)
		}
		c.ExamResult = &result
	}
	c.DocumentExpiresAt = timePtr(documentExpiresAt)
	c.ReviewedAt = timePtr(reviewedAt)
	c.ExpiresAt = timePtr(expiresAt)
	c.ExpiryNotifiedAt = timePtr(expiryNotifiedAt)
	if reviewerID.Valid {
		actor := id.ActorID(reviewerID.UUID)
		c.ReviewerID = &actor
	}
	if supersedes.Valid {
		prev := id.CredentialID(supersedes.UUID)
		c.SupersedesID = &prev
	}
	if nextRef.Valid {
		next := id.CredentialID(nextRef.UUID)
		c.SupersededByID = &next
	}
	return &c, nil
}

func encodeExam(exam *models.ExamResult) ([]byte, error) {
	if exam == nil {
		return nil, nil
	}
	raw, err := json.Marshal(exam)
	if err != nil {
		return nil, fmt.Errorf("encode exam result: %w", err)
	}
	return raw, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullActor(a *id.ActorID) uuid.NullUUID {
	if a == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*a), Valid: true}
}

func nullCredential(c *id.CredentialID) uuid.NullUUID {
	if c == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*c), Valid: true}
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
