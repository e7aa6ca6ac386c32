package session

import "time"

// State is the lifecycle of the single upstream session.
//
//	Uninitialized → Initializing → {Live, Failed}
//	Live → Refreshing → Live (forever)
//
// There is no way back to Initializing.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateLive
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Live reports whether queries may reach the upstream connection.
func (s State) Live() bool {
	return s == StateLive || s == StateRefreshing
}

// Status is a read-only snapshot for health endpoints.
type Status struct {
	State           string     `json:"state"`
	Live            bool       `json:"live"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	LastRefreshAt   *time.Time `json:"last_refresh_at,omitempty"`
	RefreshFailures int64      `json:"refresh_failures"`
	Sources         int        `json:"sources"`
	QueueDepth      int        `json:"queue_depth"`
}
