// Package models defines the entity records held in the local store and the
// control-plane records (sync state, sync operations, tombstones) that drive
// background propagation.
package models

// Kind classifies an entity.
type Kind string

const (
	KindRecipe     Kind = "recipe"
	KindCollection Kind = "collection"
	KindProfile    Kind = "profile"
	KindConnection Kind = "connection"
)

// Visibility decides which remote partitions hold a copy of an entity.
// The private partition is synced regardless; the public partition only
// while the entity is public.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)
