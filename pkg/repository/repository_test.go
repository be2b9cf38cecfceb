package repository_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

var _ repository.PageBuilder = (*query.Builder)(nil)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
	errInvalid   = errors.New("invalid")
)

func TestMapError(t *testing.T) {
	other := errors.New("some other error")
	fk := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, errNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errDuplicate},
		{"foreign key passes through", fk, fk},
		{"other passes through", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapError(tt.in, errNotFound, errDuplicate)
			if got != tt.want {
				t.Errorf("MapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapConstraint(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"foreign key", "23503", true},
		{"check", "23514", true},
		{"unique", "23505", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapConstraint(&pgconn.PgError{Code: tt.code}, errInvalid)
			if errors.Is(got, errInvalid) != tt.want {
				t.Errorf("MapConstraint(%s) = %v", tt.code, got)
			}
		})
	}
}
