package sql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A named in-memory database per test keeps tests isolated.
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestDirectory_UsersAndGroups(t *testing.T) {
	db := openTestDB(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	creator, member, outsider := uuid.New(), uuid.New(), uuid.New()
	group := uuid.New()
	now := time.Now()

	for _, id := range []uuid.UUID{creator, member, outsider} {
		if err := db.Create(&User{ID: id.String(), Username: id.String()[:8]}).Error; err != nil {
			t.Fatal(err)
		}
	}
	err := db.Create(&Group{
		ID:        group.String(),
		Name:      "team",
		CreatorID: creator.String(),
		Members: []GroupMember{
			{UserID: creator.String(), Role: RoleCreator, JoinedAt: now},
			{UserID: member.String(), Role: RoleMember, JoinedAt: now.Add(time.Second)},
		},
	}).Error
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := dir.UserExists(ctx, member); err != nil || !ok {
		t.Fatalf("UserExists = %v, %v", ok, err)
	}
	if ok, _ := dir.UserExists(ctx, uuid.New()); ok {
		t.Fatal("unknown user reported as existing")
	}
	if ok, _ := dir.GroupExists(ctx, group); !ok {
		t.Fatal("group must exist")
	}

	members, err := dir.ResolveGroupMembers(ctx, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0] != creator || members[1] != member {
		t.Fatalf("members = %v", members)
	}

	peer := model.NewPeer(group, model.PeerGroup)
	if ok, _ := dir.ValidateRecipient(ctx, peer, member); !ok {
		t.Fatal("member must be a valid recipient")
	}
	if ok, _ := dir.ValidateRecipient(ctx, peer, outsider); ok {
		t.Fatal("outsider must not be a valid recipient")
	}
	if ok, _ := dir.ValidateRecipient(ctx, model.NewPeer(member, model.PeerUser), member); !ok {
		t.Fatal("direct receiver must be a valid recipient")
	}

	if _, err := dir.ResolveGroupMembers(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown group: %v", err)
	}
}

func TestOpen_UnknownDialect(t *testing.T) {
	if _, err := Open("oracle", ""); err == nil {
		t.Fatal("expected error")
	}
}
