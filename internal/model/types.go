package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Password login state (attempt
// counter, block window) lives directly on the row.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	Phone        string
	FirstName    *string
	LastName     *string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool

	UnsuccessfulLoginAttempts int
	BlockedUntil              *time.Time

	DateJoined  time.Time
	DateUpdated time.Time
}

// IsAdmin reports whether the user may access staff-only data.
func (u *User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

// ShortLink is a shortened URL record. The ID doubles as the public slug;
// rows are never mutated after creation.
type ShortLink struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	LongURL   string
	Expiry    time.Time
	CreatedAt time.Time
}

// UserOTP holds a hashed one-time code. The ID is the transaction id the
// caller must present at verification time. Superseded rows are left to
// expire; only the newest per (id, user) is authoritative.
type UserOTP struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	Expiry    time.Time
	CreatedAt time.Time
}
