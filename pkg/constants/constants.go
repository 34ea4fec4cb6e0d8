// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// LongTimeout is for batch verification or snapshot archival
	LongTimeout = 60 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 720 * time.Hour
)

// Editing constants
const (
	// BlockLockTTL is how long an edit lock on a block survives without refresh.
	// Bounds the damage from a crashed or disconnected editor.
	BlockLockTTL = 60 * time.Second

	// PresenceTTL is how long a collaborator shows as online without a heartbeat
	PresenceTTL = 90 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Sync constants
const (
	// MaxBatchVersions caps how many block versions a single sync batch may carry
	MaxBatchVersions = 500
)
