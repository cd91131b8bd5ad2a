package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const defaultAuditListLimit = 50

// AuditRepository persists session audit-trail records in PostgreSQL. The
// session itself is stateless; this table is the only server-side record of
// its lifecycle.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	repo := &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// StoreEvent appends one audit record.
func (r *AuditRepository) StoreEvent(ctx context.Context, event domain.SessionAuditEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return errors.New("event id is required")
	}
	if strings.TrimSpace(event.SubjectID) == "" {
		return errors.New("subject id is required")
	}

	details, err := marshalAuditDetails(event.Details)
	if err != nil {
		return err
	}

	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	sqlStmt, args, err := r.builder.Insert("teamgate.session_events").
		Columns(
			"id",
			"subject_id",
			"kind",
			"at",
			"ip",
			"user_agent",
			"details",
		).
		Values(
			event.ID,
			event.SubjectID,
			event.Kind,
			at,
			optionalString(event.IP),
			optionalString(event.UserAgent),
			details,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlStmt, args...); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}

	return nil
}

// ListBySubject returns the most recent audit records for a subject, newest
// first.
func (r *AuditRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SessionAuditEvent, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}
	if limit <= 0 {
		limit = defaultAuditListLimit
	}

	stmt, args, err := r.builder.
		Select(
			"id",
			"subject_id",
			"kind",
			"at",
			"ip",
			"user_agent",
			"details",
		).
		From("teamgate.session_events").
		Where(squirrel.Eq{"subject_id": subjectID}).
		OrderBy("at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list session events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.SessionAuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}

	return events, nil
}

func scanAuditEvent(row pgx.Row) (*domain.SessionAuditEvent, error) {
	var (
		event     domain.SessionAuditEvent
		ip        sql.NullString
		userAgent sql.NullString
		details   []byte
	)

	if err := row.Scan(
		&event.ID,
		&event.SubjectID,
		&event.Kind,
		&event.At,
		&ip,
		&userAgent,
		&details,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	event.IP = nullableStringPtr(ip)
	event.UserAgent = nullableStringPtr(userAgent)

	if len(details) > 0 {
		if err := json.Unmarshal(details, &event.Details); err != nil {
			return nil, fmt.Errorf("unmarshal session event details: %w", err)
		}
	}

	return &event, nil
}

func marshalAuditDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal session event details: %w", err)
	}
	return payload, nil
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := strings.TrimSpace(value.String)
	if v == "" {
		return nil
	}
	return &v
}

var _ port.AuditStore = (*AuditRepository)(nil)
