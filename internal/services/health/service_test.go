package health

import (
	"context"
	"errors"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		ok     bool
		dbText string
	}{
		{name: "memory", db: nil, ok: true, dbText: "memory"},
		{name: "healthy", db: pingFunc(func(context.Context) error { return nil }), ok: true, dbText: "ok"},
		{name: "down", db: pingFunc(func(context.Context) error { return errors.New("refused") }), ok: false, dbText: "unavailable"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ok, checks := NewService(tt.db).Status(context.Background())
			if ok != tt.ok || checks["database"] != tt.dbText {
				t.Fatalf("expected %v/%s, got %v/%s", tt.ok, tt.dbText, ok, checks["database"])
			}
		})
	}
}
