package models

import "time"

// Collection groups recipes. Membership is stored relationally so the local
// store can answer "collections containing recipe X" without JSON scans.
type Collection struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	RecipeIDs   []string   `json:"recipe_ids"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
