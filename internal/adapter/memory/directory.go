package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

type Directory struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]struct{}
	groups map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		users:  make(map[uuid.UUID]struct{}),
		groups: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (d *Directory) AddUsers(ids ...uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.users[id] = struct{}{}
	}
}

// AddGroup creates or replaces a group with the given members.
func (d *Directory) AddGroup(groupID uuid.UUID, members ...uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := make(map[uuid.UUID]struct{}, len(members))
	for _, id := range members {
		set[id] = struct{}{}
		d.users[id] = struct{}{}
	}
	d.groups[groupID] = set
}

func (d *Directory) RemoveGroup(groupID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, groupID)
}

func (d *Directory) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, ctx.Err()
}

func (d *Directory) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.groups[groupID]
	return ok, ctx.Err()
}

func (d *Directory) ResolveGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.groups[groupID]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

func (d *Directory) ValidateRecipient(ctx context.Context, to model.Peer, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !to.IsGroup() {
		return to.ID == userID, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.groups[to.ID]
	if !ok {
		return false, nil
	}
	_, member := set[userID]
	return member, nil
}
