// Package audit records authentication events. Logging is best-effort: a
// failed write never fails the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auth-backend/internal/audit/domain"
	auditrepo "auth-backend/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// EventLogger writes a single auth event. Implementations must not return
// errors to the caller; a nil EventLogger dependency disables auditing.
type EventLogger interface {
	LogEvent(ctx context.Context, userID, action, metadata string)
}

// Logger implements EventLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *slog.Logger
}

// NewLogger returns an EventLogger that persists to repo and uses ipExtractor
// for the client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one auth event. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if extracted := l.ipExtractor(ctx); extracted != "" {
			ip = extracted
		}
	}
	event := &domain.AuthEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, event); err != nil {
		l.log.Warn("audit: failed to log event", "action", action, "error", err)
	}
}
