package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// DirectoryMiddleware implements [DECORATOR_PATTERN] to add observability
// to directory lookups without touching business logic.
type DirectoryMiddleware struct {
	Next   Directory
	Logger *slog.Logger
}

func NewDirectoryMiddleware(next Directory, logger *slog.Logger) Directory {
	return &DirectoryMiddleware{Next: next, Logger: logger}
}

func (m *DirectoryMiddleware) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	start := time.Now()
	ok, err := m.Next.UserExists(ctx, userID)
	m.observe("USER_LOOKUP", start, err, "user_id", userID)
	return ok, err
}

func (m *DirectoryMiddleware) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	start := time.Now()
	ok, err := m.Next.GroupExists(ctx, groupID)
	m.observe("GROUP_LOOKUP", start, err, "group_id", groupID)
	return ok, err
}

func (m *DirectoryMiddleware) ResolveGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	start := time.Now()
	members, err := m.Next.ResolveGroupMembers(ctx, groupID)
	m.observe("GROUP_MEMBERS_RESOLVE", start, err, "group_id", groupID, "members", len(members))
	return members, err
}

func (m *DirectoryMiddleware) ValidateRecipient(ctx context.Context, to model.Peer, userID uuid.UUID) (bool, error) {
	start := time.Now()
	ok, err := m.Next.ValidateRecipient(ctx, to, userID)
	m.observe("RECIPIENT_VALIDATE", start, err, "peer_id", to.ID, "peer_type", to.Type.String(), "user_id", userID)
	return ok, err
}

// [OBSERVABILITY] Failures are warnings, successes are debug noise.
func (m *DirectoryMiddleware) observe(op string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		m.Logger.Warn(op+"_FAILED", append(attrs, "err", err)...)
		return
	}
	m.Logger.Debug(op+"_COMPLETED", attrs...)
}
