// Package domain defines the persistence models for anonymous users and
// their conversation turns. These types are mapped with GORM and form the
// core data layer of the conversation proxy.
package domain

import "time"

// Turn roles. The set is open by design: the store accepts any label, but
// these are the two the proxy itself writes.
const (
	RoleUser      = "User"
	RoleAssistant = "AI"
)

// User represents one anonymous caller, identified by the UUID carried in
// the identity cookie. Users are created on first contact and never deleted;
// clearing history removes their turns only.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), minted server-side.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Turn is one immutable, role-tagged message in a user's conversation.
// Turns are appended by the message endpoint after each successful
// completion round-trip and are only ever deleted in bulk when the user
// clears their history. Soft deletion is intentionally not used: clearing
// must be a real delete, with no resurrection on a later read.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: foreign key to the owning user (indexed with CreatedAt so
//     recent-history reads are a single index scan).
//   - Role: open label set; the proxy writes "User" and "AI".
//   - Content: verbatim message text, unbounded length.
//   - CreatedAt: server-assigned sequence-ordering timestamp.
//   - User: FK association, ensures cascade delete of turns with their user.
type Turn struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_turns,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(50);not null"`
	Content   string    `json:"content"    gorm:"type:longtext;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_user_turns,priority:2"`

	// User is the owning identity. Turns are cascade-deleted if the user
	// row is ever removed.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }
