package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"auth-backend/internal/audit/domain"
)

type memEventRepo struct {
	mu     sync.Mutex
	events []*domain.AuthEvent
	fail   bool
}

func (r *memEventRepo) Create(ctx context.Context, e *domain.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("boom")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *memEventRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuthEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuthEvent
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLogger_LogEvent(t *testing.T) {
	repo := &memEventRepo{}
	l := NewLogger(repo, func(ctx context.Context) string { return "10.1.2.3" }, nil)

	l.LogEvent(context.Background(), "user-1", domain.ActionLogin, "provider=password")

	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.ID == "" {
		t.Error("event ID not assigned")
	}
	if e.UserID != "user-1" || e.Action != domain.ActionLogin || e.IP != "10.1.2.3" {
		t.Errorf("event = %+v", e)
	}
}

func TestLogger_UnknownIPWithoutExtractor(t *testing.T) {
	repo := &memEventRepo{}
	l := NewLogger(repo, nil, nil)

	l.LogEvent(context.Background(), "", domain.ActionLoginFailed, "")

	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	if repo.events[0].IP != "unknown" {
		t.Errorf("IP = %q, want unknown", repo.events[0].IP)
	}
}

func TestLogger_RepoFailureSwallowed(t *testing.T) {
	l := NewLogger(&memEventRepo{fail: true}, nil, nil)
	// Must not panic or propagate.
	l.LogEvent(context.Background(), "user-1", domain.ActionLogout, "")
}

func TestLogger_NilRepoDisables(t *testing.T) {
	l := NewLogger(nil, nil, nil)
	l.LogEvent(context.Background(), "user-1", domain.ActionLogin, "")
}
