package model

import "github.com/google/uuid"

// ServerVersion is reported to clients in the connection handshake.
var ServerVersion = "0.0.0"

// ConnectedPayload represents the data sent to the client upon successful connection.
type ConnectedPayload struct {
	Ok            bool      `json:"ok"`
	ConnectionID  string    `json:"connection_id"`
	UserID        uuid.UUID `json:"user_id"`
	ServerVersion string    `json:"server_version"`
}
