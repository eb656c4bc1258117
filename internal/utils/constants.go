package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

const (
	// DefaultRequestTimeout is the default timeout for HTTP requests
	DefaultRequestTimeout = 30 * time.Second

	// StoreTimeout bounds a single run store round trip
	StoreTimeout = 5 * time.Second

	// PublishTimeout bounds publishing a run event
	PublishTimeout = 5 * time.Second

	// RunTimeout is the hard limit for one forecasting run
	RunTimeout = 1 * time.Hour
)

// =============================================================================
// Forecast Defaults
// =============================================================================

const (
	// DefaultHorizon is the default number of forecast days (two years)
	DefaultHorizon = 730

	// DefaultSeasonalPeriod is the default season length in days
	DefaultSeasonalPeriod = 365

	// ForecastStep is the spacing between forecast dates
	ForecastStep = 24 * time.Hour

	// ISODateLayout is the canonical merge key layout
	ISODateLayout = "2006-01-02"
)

// =============================================================================
// Queue Type Constants
// =============================================================================

// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeNATS represents NATS JetStream queue
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka represents Apache Kafka queue
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory represents in-memory queue (for testing and single-node setups)
	QueueTypeMemory QueueType = "memory"

	// QueueTypeNone disables run events
	QueueTypeNone QueueType = "none"
)

// =============================================================================
// Store Type Constants
// =============================================================================

// StoreType represents the run store backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeEtcd   StoreType = "etcd"
)
