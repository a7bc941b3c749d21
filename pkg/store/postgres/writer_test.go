package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "Well, that's odd!", "well thats odd"},
		{"collapses whitespace", "too   many\tspaces\nhere", "too many spaces here"},
		{"trims edges", "  padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeText_MatchesAcrossPunctuationVariants(t *testing.T) {
	a := NormalizeText("What's the capital of France?")
	b := NormalizeText("whats the capital of france")
	if a != b {
		t.Errorf("expected normalization to converge, got %q and %q", a, b)
	}
}

func TestIsRetriableDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"insufficient resources", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"unclassified error", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetriableDBError(tt.err); got != tt.want {
				t.Errorf("isRetriableDBError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
