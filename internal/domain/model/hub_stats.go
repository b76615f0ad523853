package model

// HubStats is the registry snapshot served on GET /v1/stats.
type HubStats struct {
	TotalUsers       int          `json:"total_users"`
	TotalConnections int          `json:"total_connections"`
	DroppedEvents    uint64       `json:"dropped_events"` // shed by slow sessions still connected
	UptimeSeconds    int64        `json:"uptime_seconds"`
	Shards           []ShardStats `json:"shards,omitempty"`
}

type ShardStats struct {
	ShardID     int `json:"shard_id"`
	UserCount   int `json:"user_count"`
	Connections int `json:"connections"`
}
