// Package audit records authentication events (logins, refreshes, replay
// detections) for later inspection. Recording is best-effort and never blocks
// the calling operation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trailblazer-user-service/internal/audit/domain"
	auditrepo "trailblazer-user-service/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Logger persists audit events through the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns a Logger that persists to repo and uses ipExtractor for
// the client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: failures are logged and
// do not affect the caller.
func (l *Logger) LogEvent(ctx context.Context, userID, action, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
