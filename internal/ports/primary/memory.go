package primary

import "context"

// MemoryService defines the primary port for the persistent memory stream.
type MemoryService interface {
	// SaveEvent appends one memory event, deduplicating by dedupe key.
	SaveEvent(ctx context.Context, req SaveEventRequest) (*SaveEventResponse, error)

	// Search returns events matching a full-text query, newest first.
	Search(ctx context.Context, req MemorySearchRequest) ([]*MemoryEvent, error)

	// Timeline returns events around an anchor event in chronological order.
	Timeline(ctx context.Context, req TimelineRequest) ([]*MemoryEvent, error)

	// Observations fetches events by ID, skipping unknown IDs.
	Observations(ctx context.Context, ids []int64) ([]*MemoryEvent, error)

	// InitSession registers a new working session.
	InitSession(ctx context.Context, req InitSessionRequest) (*Session, error)

	// RecentSessions lists sessions, newest first.
	RecentSessions(ctx context.Context, limit int) ([]*Session, error)

	// Stats summarizes the stream.
	Stats(ctx context.Context) (*MemoryStats, error)
}

// SaveEventRequest contains one event to append.
type SaveEventRequest struct {
	Type       string
	Title      string
	Text       string
	Tags       []string
	Refs       map[string]string
	Actor      string
	Scope      string
	Importance float64
	DedupeKey  string
	Project    string
	SessionID  string
}

// SaveEventResponse reports the stored event's identity.
type SaveEventResponse struct {
	ID int64
}

// MemorySearchRequest filters a full-text search over the stream.
type MemorySearchRequest struct {
	Query     string
	Type      string
	Project   string
	SessionID string
	Limit     int
}

// TimelineRequest selects a window around one event.
type TimelineRequest struct {
	AnchorID int64
	Before   int
	After    int
}

// MemoryEvent is a memory event at the port boundary.
type MemoryEvent struct {
	ID         int64             `json:"id"`
	TS         string            `json:"ts"`
	Type       string            `json:"type"`
	Actor      string            `json:"actor"`
	Scope      string            `json:"scope"`
	Title      string            `json:"title"`
	Text       string            `json:"text"`
	Tags       []string          `json:"tags"`
	Refs       map[string]string `json:"refs"`
	Importance float64           `json:"importance"`
	Project    string            `json:"project,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
}

// InitSessionRequest registers a session start.
type InitSessionRequest struct {
	SessionID     string
	Project       string
	InitialPrompt string
}

// Session is a working session at the port boundary.
type Session struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"session_id"`
	Project       string `json:"project,omitempty"`
	InitialPrompt string `json:"initial_prompt,omitempty"`
	StartedAt     string `json:"started_at"`
}

// MemoryStats summarizes the memory stream.
type MemoryStats struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	Sessions    int            `json:"sessions"`
}
