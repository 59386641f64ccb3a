package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore appends audit entries to the credential_audit table.
// The table rejects UPDATE and DELETE through a trigger.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type entryRow struct {
	ID           uuid.UUID     `db:"id"`
	CredentialID uuid.NullUUID `db:"credential_id"`
	OwnerID      uuid.UUID     `db:"owner_id"`
	Action       string        `db:"action"`
	OldStatus    string        `db:"old_status"`
	NewStatus    string        `db:"new_status"`
	ActorID      uuid.UUID     `db:"actor_id"`
	ActorRole    string        `db:"actor_role"`
	Reason       string        `db:"reason"`
	RecordedAt   time.Time     `db:"recorded_at"`
}

func (r entryRow) toEntry() Entry {
	e := Entry{
		ID:        id.AuditEntryID(r.ID),
		OwnerID:   id.OwnerID(r.OwnerID),
		Action:    r.Action,
		OldStatus: models.Status(r.OldStatus),
		NewStatus: models.Status(r.NewStatus),
		ActorID:   id.ActorID(r.ActorID),
		ActorRole: id.Role(r.ActorRole),
		Timestamp: r.RecordedAt,
		Reason:    r.Reason,
	}
	if r.CredentialID.Valid {
		credentialID := id.CredentialID(r.CredentialID.UUID)
		e.CredentialID = &credentialID
	}
	return e
}

var entryColumns = []string{
	"id", "credential_id", "owner_id", "action", "old_status", "new_status",
	"actor_id", "actor_role", "reason", "recorded_at",
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	var credentialID uuid.NullUUID
	if e.CredentialID != nil {
		credentialID = uuid.NullUUID{UUID: uuid.UUID(*e.CredentialID), Valid: true}
	}
	query, args, err := psql.Insert("credential_audit").Columns(entryColumns...).Values(
		uuid.UUID(e.ID), credentialID, uuid.UUID(e.OwnerID), e.Action,
		string(e.OldStatus), string(e.NewStatus), uuid.UUID(e.ActorID), string(e.ActorRole),
		e.Reason, e.Timestamp,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCredential(ctx context.Context, credentialID id.CredentialID) ([]Entry, error) {
	return s.list(ctx, sq.Eq{"credential_id": uuid.UUID(credentialID)})
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]Entry, error) {
	return s.list(ctx, sq.Eq{"owner_id": uuid.UUID(ownerID)})
}

func (s *PostgresStore) list(ctx context.Context, where sq.Eq) ([]Entry, error) {
	query, args, err := psql.Select(entryColumns...).From("credential_audit").
		Where(where).OrderBy("recorded_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}
	var rows []entryRow
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}
