package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubExecutor struct {
	tags   map[string]string
	rows   map[string]stubRow
	execs  []string
	params [][]any
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, query)
	s.params = append(s.params, args)
	return pgconn.NewCommandTag(s.tags[query]), nil
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	return s.rows[query]
}

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func existsRow(v bool) stubRow {
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*bool) = v
		return nil
	}}
}

func TestJobRepositoryPGClaimDistinguishesMissing(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{"missing job", false, domain.ErrNotFound},
		{"already claimed", true, domain.ErrJobNotClaimable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &stubExecutor{rows: map[string]stubRow{
				sqlinline.QClaimCreativeJob: {},
				sqlinline.QJobExists:        existsRow(tc.exists),
			}}
			_, err := NewJobRepository(db).Claim(context.Background(), "job-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Claim error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestJobRepositoryPGUpdateTerminal(t *testing.T) {
	db := &stubExecutor{
		tags: map[string]string{sqlinline.QUpdateCreativeJob: "UPDATE 0"},
		rows: map[string]stubRow{sqlinline.QJobExists: existsRow(true)},
	}
	err := NewJobRepository(db).Update(context.Background(), &domain.Job{ID: "job-1", Status: domain.JobStatusProcessing})
	if !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("Update error = %v, want ErrJobTerminal", err)
	}
}

func TestJobRepositoryPGCreateEncodesPayload(t *testing.T) {
	db := &stubExecutor{tags: map[string]string{sqlinline.QInsertCreativeJob: "INSERT 0 1"}}
	job := &domain.Job{ID: "job-1", OwnerID: "o", Status: domain.JobStatusPending, Payload: domain.Payload{TemplateID: "promo-square"}}
	if err := NewJobRepository(db).Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(db.params) != 1 {
		t.Fatalf("expected one exec, got %d", len(db.params))
	}
	payload, ok := db.params[0][6].([]byte)
	if !ok || !strings.Contains(string(payload), `"promo-square"`) {
		t.Fatalf("payload param = %v", db.params[0][6])
	}
	if result, _ := db.params[0][7].([]byte); result != nil {
		t.Fatalf("nil result should encode as NULL, got %q", result)
	}
}

func TestBrandRepositoryPGNotFound(t *testing.T) {
	db := &stubExecutor{rows: map[string]stubRow{sqlinline.QSelectBrand: {}}}
	if _, err := NewBrandRepository(db).GetBrand(context.Background(), "ghost"); !errors.Is(err, domain.ErrBrandNotFound) {
		t.Fatalf("error = %v, want ErrBrandNotFound", err)
	}
}
