package models

import "time"

// Ingredient is one fully parsed ingredient line. Parsing raw recipe text
// into ingredients happens upstream; the data layer only stores the result.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// Recipe is the local projection of a recipe. All fields are always present
// locally; cloud-related state lives in SyncState, joined by ID.
type Recipe struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Title       string       `json:"title"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Notes       string       `json:"notes,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Visibility  Visibility   `json:"visibility"`
	HasImage    bool         `json:"has_image"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
