package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

type stubDB struct {
	query string
	args  []any
	row   stubRow
}

func (s *stubDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.query = sql
	s.args = args
	return s.row
}

func TestProfileRepositoryGetByUserIDNotFound(t *testing.T) {
	db := &stubDB{row: stubRow{scan: func(...any) error { return pgx.ErrNoRows }}}

	record, err := NewProfileRepository(db).GetByUserID(context.Background(), "user-1")
	if err != nil || record != nil {
		t.Fatalf("expected nil, nil for a missing profile, got %+v %v", record, err)
	}
	if len(db.args) != 1 || db.args[0] != "user-1" {
		t.Fatalf("unexpected args: %v", db.args)
	}
}

func TestProfileRepositoryGetByUserIDDecodesPlan(t *testing.T) {
	updatedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &stubDB{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "user-1"
		*dest[1].(*string) = "Maya"
		*dest[10].(*[]byte) = []byte(`{"predicted_time":"8 weeks","plan":{"cardio":"Rowing (15 min)"}}`)
		*dest[11].(*time.Time) = updatedAt
		return nil
	}}}

	record, err := NewProfileRepository(db).GetByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if record.Name != "Maya" || record.LastPlan == nil || record.LastPlan.Plan.Cardio != "Rowing (15 min)" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("unexpected updated_at: %s", record.UpdatedAt)
	}
}

func TestProfileRepositoryGetByUserIDPropagatesErrors(t *testing.T) {
	db := &stubDB{row: stubRow{scan: func(...any) error { return errors.New("conn closed") }}}

	if _, err := NewProfileRepository(db).GetByUserID(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProfileRepositoryUpsert(t *testing.T) {
	updatedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &stubDB{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*time.Time) = updatedAt
		return nil
	}}}

	height := 180.0
	record := &models.ProfileRecord{
		UserID:   "user-1",
		Name:     "Maya",
		Height:   &height,
		LastPlan: &models.Plan{PredictedTime: "12 weeks"},
	}
	if err := NewProfileRepository(db).Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if !strings.Contains(db.query, "ON CONFLICT (user_id) DO UPDATE") {
		t.Fatalf("expected upsert keyed by user_id, got %s", db.query)
	}
	if len(db.args) != 11 || db.args[0] != "user-1" {
		t.Fatalf("unexpected args: %v", db.args)
	}
	if plan, ok := db.args[10].([]byte); !ok || !strings.Contains(string(plan), `"predicted_time":"12 weeks"`) {
		t.Fatalf("expected JSON encoded plan, got %v", db.args[10])
	}
	if !record.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("expected updated_at from RETURNING, got %s", record.UpdatedAt)
	}
}

func TestProfileRepositoryUpsertWithoutPlanSendsNull(t *testing.T) {
	db := &stubDB{row: stubRow{scan: func(...any) error { return nil }}}

	if err := NewProfileRepository(db).Upsert(context.Background(), &models.ProfileRecord{UserID: "user-1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if plan, _ := db.args[10].([]byte); plan != nil {
		t.Fatalf("expected NULL last_plan, got %s", plan)
	}
}

func TestProfileRepositoryUpsertRequiresUserID(t *testing.T) {
	db := &stubDB{}
	if err := NewProfileRepository(db).Upsert(context.Background(), &models.ProfileRecord{}); err == nil {
		t.Fatalf("expected error")
	}
	if db.query != "" {
		t.Fatalf("expected no query")
	}
}
