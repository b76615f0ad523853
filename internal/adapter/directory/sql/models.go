package sql

import "time"

type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
)

// User mirrors the profile table owned by the profile service; only the
// identity column matters here.
type User struct {
	ID        string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"size:64;index"`
	CreatedAt time.Time
}

type Group struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:128"`
	CreatorID string `gorm:"size:36;index"`
	CreatedAt time.Time
	Members   []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

type GroupMember struct {
	GroupID  string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"primaryKey;size:36;index"`
	Role     Role   `gorm:"size:16"`
	JoinedAt time.Time
}
