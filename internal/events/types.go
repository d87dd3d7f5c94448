// Package events defines the event types and payloads published through
// the EventBus. The core engine (internal/core, internal/master,
// internal/rcon) never imports this package; ambient services publish on
// its behalf via the Client facade hooks so the core stays a plain
// request/response engine.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Query lifecycle events, one per completed request/response round trip.
	EventQueryCompleted EventType = "query_completed"
	EventQueryFailed    EventType = "query_failed"

	// Master Server iteration events. The Client facade emits EventMasterDone
	// once per iteration; no agql component emits EventMasterPage.
	EventMasterPage EventType = "master_page"
	EventMasterDone EventType = "master_done"

	// RCON connection lifecycle events.
	EventRCONAuthenticated EventType = "rcon_authenticated"
	EventRCONAuthFailed    EventType = "rcon_auth_failed"
	EventRCONClosed        EventType = "rcon_closed"

	// System events.
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
	EventHeartbeat     EventType = "heartbeat"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// QueryCompletedPayload is emitted when a request's completion handle
// resolves successfully.
type QueryCompletedPayload struct {
	Family       string
	Addr         string
	SequenceID   int64
	ResponseKind string
	Elapsed      float64 // seconds
}

// QueryFailedPayload is emitted when a request's completion handle
// resolves with an error (timeout, transport, encoding, cancellation).
type QueryFailedPayload struct {
	Family     string
	Addr       string
	SequenceID int64
	Err        string
}

// MasterPagePayload is the payload shape for EventMasterPage, describing
// one Master Server page. The C5 loop does not emit it.
type MasterPagePayload struct {
	MasterAddr string
	Seed       string
	PageSize   int
}

// MasterDonePayload is emitted once the C5 loop reaches Done or Failed.
type MasterDonePayload struct {
	MasterAddr string
	Total      int
	TimedOut   bool
	Err        string
	Elapsed    float64
}

// RCONAuthPayload is emitted after an RCON authentication attempt.
type RCONAuthPayload struct {
	Addr string
	OK   bool
}

// RCONClosedPayload is the payload shape for EventRCONClosed, describing an
// RCON connection that transitioned to Closed. The rcon client does not
// emit it.
type RCONClosedPayload struct {
	Addr   string
	Reason string
}

// HeartbeatPayload is emitted periodically by the health manager.
type HeartbeatPayload struct {
	CPUPercent          float64
	MemoryUsedPercent   float64
	QueueDepth          int
	OutstandingSessions int
}

// ConfigChangedPayload is the payload shape for EventConfigChanged. The
// config package does not emit it when configuration changes.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
