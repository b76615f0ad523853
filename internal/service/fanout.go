package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// FanoutResolver expands a group into its recipients.
type FanoutResolver struct {
	dir Directory
}

func NewFanoutResolver(dir Directory) *FanoutResolver {
	return &FanoutResolver{dir: dir}
}

// MembersOf reads the current membership and drops exclude (the sender).
// A group that disappeared after the send was validated yields an empty set.
func (f *FanoutResolver) MembersOf(ctx context.Context, groupID, exclude uuid.UUID) ([]uuid.UUID, error) {
	members, err := f.dir.ResolveGroupMembers(ctx, groupID)
	if errors.Is(err, model.ErrNotFound) {
		return []uuid.UUID{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fanout: resolve members of %s: %w", groupID, err)
	}

	out := make([]uuid.UUID, 0, len(members))
	seen := make(map[uuid.UUID]struct{}, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
