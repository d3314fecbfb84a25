package models

import "time"

// Profile is a tenant's user profile. A profile owns itself: OwnerID is the
// profile ID. The avatar image, if any, is tracked through SyncState like a
// recipe photo.
type Profile struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Bio         string     `json:"bio,omitempty"`
	Visibility  Visibility `json:"visibility"`
	HasAvatar   bool       `json:"has_avatar"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
