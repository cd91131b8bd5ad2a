package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/stackpilot/teamgate/internal/core/domain"
)

func TestAuditRepository_StoreEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)

	at := time.Now().UTC()
	ip := "198.51.100.10"
	event := domain.SessionAuditEvent{
		ID:        "event-1",
		SubjectID: "subj_01",
		Kind:      "session.created",
		At:        at,
		IP:        &ip,
		Details:   map[string]any{"remember_me": true},
	}

	mock.ExpectExec(`INSERT INTO teamgate\.session_events`).
		WithArgs(
			event.ID,
			event.SubjectID,
			event.Kind,
			at,
			ip,
			nil,
			[]byte(`{"remember_me":true}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.StoreEvent(context.Background(), event); err != nil {
		t.Fatalf("StoreEvent returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditRepository_StoreEventRequiresIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)

	if err := repo.StoreEvent(context.Background(), domain.SessionAuditEvent{SubjectID: "subj_01"}); err == nil {
		t.Fatalf("expected error for missing event id")
	}
	if err := repo.StoreEvent(context.Background(), domain.SessionAuditEvent{ID: "event-1"}); err == nil {
		t.Fatalf("expected error for missing subject id")
	}
}

func TestAuditRepository_ListBySubject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)

	at := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "subject_id", "kind", "at", "ip", "user_agent", "details",
	}).AddRow(
		"event-2", "subj_01", "session.destroyed", at, nil, nil, []byte(`{"reason":"logout"}`),
	).AddRow(
		"event-1", "subj_01", "session.created", at.Add(-time.Hour), "198.51.100.10", "UA", nil,
	)

	mock.ExpectQuery(`SELECT .*FROM teamgate\.session_events`).
		WithArgs("subj_01").
		WillReturnRows(rows)

	events, err := repo.ListBySubject(context.Background(), "subj_01", 10)
	if err != nil {
		t.Fatalf("ListBySubject returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != "session.destroyed" {
		t.Fatalf("expected newest event first, got %s", events[0].Kind)
	}
	if reason, ok := events[0].Details["reason"].(string); !ok || reason != "logout" {
		t.Fatalf("expected decoded details, got %+v", events[0].Details)
	}
	if events[1].IP == nil || *events[1].IP != "198.51.100.10" {
		t.Fatalf("expected ip pointer populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditRepository_ListBySubjectRequiresSubject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)

	if _, err := repo.ListBySubject(context.Background(), "  ", 10); err == nil {
		t.Fatalf("expected error for empty subject id")
	}
}
