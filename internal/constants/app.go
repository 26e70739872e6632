package constants

import (
	"time"
)

// Chunking defaults
const (
	// DefaultChunkSize - size of each part for multipart uploads (50 MB).
	// Overridable via the chunk_size setting; fixed for the lifetime of a run.
	DefaultChunkSize = 50 * 1024 * 1024

	// DefaultLargeFileThreshold - files at or above this size MUST use the
	// multipart path (50 MB). Smaller files may upload as a single part but
	// still obtain a server upload key first.
	DefaultLargeFileThreshold = 50 * 1024 * 1024

	// HashBlockSize - read block for streaming hash computation (64 KB)
	HashBlockSize = 64 * 1024
)

// Timers and intervals
const (
	// DefaultConnectionTimeout - wall-clock deadline for a full HTTP exchange
	DefaultConnectionTimeout = 30 * time.Second

	// DefaultHeartbeatInterval - control-plane liveness cadence
	DefaultHeartbeatInterval = 60 * time.Second

	// DefaultStatInterval - aggregated status push cadence
	DefaultStatInterval = 300 * time.Second
)

// Retry configuration for part uploads
const (
	// PartRetryInitialDelay - initial backoff before the first part retry
	PartRetryInitialDelay = 1 * time.Second

	// PartRetryMaxDelay - exponential backoff cap between part retries
	PartRetryMaxDelay = 60 * time.Second

	// PartRetryMaxAttempts - attempts per part before the upload is failed
	PartRetryMaxAttempts = 5
)

// Upload record housekeeping
const (
	// UploadGracePeriod - how long completed or failed upload records are
	// kept before the reaper removes them
	UploadGracePeriod = 24 * time.Hour
)

// Exit codes used by the CLI.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfig      = 2
	ExitEnrollment  = 3
	ExitNoProviders = 4
)

// Control-plane API path prefix. Versioned so the server can evolve the
// surface without breaking deployed agents.
const APIPrefix = "/api/v1"

// Well-known setting names in the local store.
const (
	SettingChunkSize          = "chunk_size"
	SettingLargeFileThreshold = "large_file_threshold"
	SettingConnectionTimeout  = "connection_timeout"
	SettingHeartbeatInterval  = "heartbeat_interval"
	SettingStatInterval       = "stat_interval"
	SettingVerifyTLS          = "verify_tls"
	SettingHTTPLogging        = "http_logging"
	SettingDeploymentKey      = "deployment_key"
	SettingClientToken        = "client_token"
	SettingUserID             = "user_id"
)
