package models

import "time"

// ConnectionStatus tracks the handshake between two tenants.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection links the owning tenant to a peer tenant. Connections never
// leave the private partition and carry no image asset.
type Connection struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	PeerID    string           `json:"peer_id"`
	Status    ConnectionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
