package model

import (
	"time"
)

// AnonymousUser owns files that were imported without a known uploader.
const AnonymousUser = "anonymous"

type User struct {
	ID        int64      `db:"id"`
	Name      string     `db:"name"`
	APIKey    string     `db:"api_key"`
	ExpiresAt *time.Time `db:"expires_at"` // nil = never expires
	CreatedAt time.Time  `db:"created_at"`
}

func (u *User) IsTemp() bool {
	return u.ExpiresAt != nil
}
