package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports liveness plus the state of the result store.
type Service struct {
	DB    *sql.DB
	Store string
}

// NewService constructs a new health service. db may be nil when results
// are kept in memory.
func NewService(db *sql.DB, store string) *Service {
	return &Service{DB: db, Store: store}
}

// Status returns the health payload and whether every dependency answered.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{"ok": true, "resultStore": s.Store}
	if s.DB == nil {
		return out, true
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		out["ok"] = false
		out["database"] = "unreachable"
		return out, false
	}
	out["database"] = "ok"
	return out, true
}
