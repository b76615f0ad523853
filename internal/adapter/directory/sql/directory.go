// Package sql answers directory questions from the relational profile and
// group tables through gorm.
package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with the given dialect (sqlite or mysql).
func Open(dialect, dsn string) (*gorm.DB, error) {
	var d gorm.Dialector
	switch dialect {
	case "sqlite":
		d = sqlite.Open(dsn)
	case "mysql":
		d = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("directory: unsupported dialect %q", dialect)
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("directory: open %s: %w", dialect, err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Group{}, &GroupMember{})
}

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	return d.exists(ctx, &User{}, "id = ?", userID.String())
}

func (d *Directory) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	return d.exists(ctx, &Group{}, "id = ?", groupID.String())
}

func (d *Directory) exists(ctx context.Context, table any, query string, args ...any) (bool, error) {
	var n int64
	if err := d.db.WithContext(ctx).Model(table).Where(query, args...).Count(&n).Error; err != nil {
		return false, fmt.Errorf("directory: count: %w", err)
	}
	return n > 0, nil
}

func (d *Directory) ResolveGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	ok, err := d.GroupExists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrNotFound
	}

	var ids []string
	err = d.db.WithContext(ctx).Model(&GroupMember{}).
		Where("group_id = ?", groupID.String()).
		Order("joined_at").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("directory: members of %s: %w", groupID, err)
	}

	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("directory: corrupt member id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *Directory) ValidateRecipient(ctx context.Context, to model.Peer, userID uuid.UUID) (bool, error) {
	if !to.IsGroup() {
		return to.ID == userID, nil
	}
	var m GroupMember
	err := d.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", to.ID.String(), userID.String()).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory: membership: %w", err)
	}
	return true, nil
}
