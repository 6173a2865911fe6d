package migrate

import (
	"errors"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	want := "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL"
	if err.Error() != want {
		t.Errorf("error message = %q, want %q", err.Error(), want)
	}
}

func TestRun_WhitespaceDSN(t *testing.T) {
	if err := Run("   ", "up"); err == nil {
		t.Error("Run with whitespace DSN should return error")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Down", "both"} {
		t.Run(direction, func(t *testing.T) {
			if err := Run("postgres://localhost/test", direction); err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}

func TestRun_UnsupportedScheme(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "mysql://localhost/test", "://localhost/test"} {
		if err := Run(dsn, "up"); err == nil {
			t.Errorf("Run with DSN %q should return error", dsn)
		}
	}
}

func TestDriverURL(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/auth?sslmode=disable", "pgx5://u:p@localhost:5432/auth?sslmode=disable"},
		{"postgresql://localhost/auth", "pgx5://localhost/auth"},
		{"pgx5://localhost/auth", "pgx5://localhost/auth"},
	}
	for _, tc := range testCases {
		got, err := driverURL(tc.in)
		if err != nil {
			t.Fatalf("driverURL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("driverURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestErrNoChange(t *testing.T) {
	if ErrNoChange == nil {
		t.Fatal("ErrNoChange should not be nil")
	}
	if !errors.Is(ErrNoChange, ErrNoChange) {
		t.Error("ErrNoChange should be errors.Is compatible")
	}
}
