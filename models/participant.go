package models

import "time"

// Participant is a community member signed up to one instance under an in-game name.
type Participant struct {
	ID          int       `json:"id" db:"id"`
	CommunityID string    `json:"community_id" db:"community_id"`
	InstanceID  int       `json:"instance_id" db:"instance_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	ExternalID  *int64    `json:"external_id,omitempty" db:"external_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// WaitlistEntry is a league registration that has not been placed into a division yet.
type WaitlistEntry struct {
	CommunityID string    `json:"community_id" db:"community_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
