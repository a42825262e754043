package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/loom/internal/apperr"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/ports/secondary"
)

// Memory event types accepted by SaveEvent. The first six form the core
// enum; observation, task, and session are additive conveniences for hook
// and bridge callers.
var memoryEventTypes = map[string]bool{
	"decision":          true,
	"discovery":         true,
	"lesson":            true,
	"rejected_pattern":  true,
	"pattern_candidate": true,
	"event":             true,
	"observation":       true,
	"task":              true,
	"session":           true,
}

const defaultMemoryLimit = 20

// MemoryServiceImpl implements the MemoryService port over the memory
// repository.
type MemoryServiceImpl struct {
	repo secondary.MemoryRepository
	now  func() time.Time
}

// NewMemoryService creates a MemoryService.
func NewMemoryService(repo secondary.MemoryRepository) *MemoryServiceImpl {
	return &MemoryServiceImpl{repo: repo, now: time.Now}
}

// SaveEvent appends one memory event.
func (s *MemoryServiceImpl) SaveEvent(ctx context.Context, req primary.SaveEventRequest) (*primary.SaveEventResponse, error) {
	if req.Title == "" && req.Text == "" {
		return nil, apperr.Validationf("event needs a title or text")
	}
	if req.Type != "" && !memoryEventTypes[req.Type] {
		return nil, apperr.Validationf("unknown event type %q", req.Type)
	}
	if req.Importance < 0 || req.Importance > 1 {
		return nil, apperr.Validationf("importance must be in [0,1], got %v", req.Importance)
	}

	now := s.now().UTC()
	importance := req.Importance
	if importance == 0 {
		importance = 0.5
	}
	id, err := s.repo.Save(ctx, &secondary.MemoryEventRecord{
		TS:             now.Format(time.RFC3339Nano),
		Type:           req.Type,
		Actor:          req.Actor,
		Scope:          req.Scope,
		Title:          req.Title,
		Text:           req.Text,
		Tags:           req.Tags,
		Refs:           req.Refs,
		Importance:     importance,
		DedupeKey:      req.DedupeKey,
		Project:        req.Project,
		SessionID:      req.SessionID,
		CreatedAtEpoch: now.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save memory event: %w", err)
	}
	return &primary.SaveEventResponse{ID: id}, nil
}

// Search returns events matching a full-text query. An empty query falls
// back to the recent stream.
func (s *MemoryServiceImpl) Search(ctx context.Context, req primary.MemorySearchRequest) ([]*primary.MemoryEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMemoryLimit
	}

	var (
		records []*secondary.MemoryEventRecord
		err     error
	)
	if req.Query == "" {
		records, err = s.repo.Recent(ctx, limit)
	} else {
		records, err = s.repo.Search(ctx, req.Query, secondary.MemoryFilters{
			Type:      req.Type,
			Project:   req.Project,
			SessionID: req.SessionID,
			Limit:     limit,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}
	return eventsToPort(records), nil
}

// Timeline returns events around an anchor, oldest first.
func (s *MemoryServiceImpl) Timeline(ctx context.Context, req primary.TimelineRequest) ([]*primary.MemoryEvent, error) {
	before, after := req.Before, req.After
	if before <= 0 {
		before = 5
	}
	if after <= 0 {
		after = 5
	}
	records, err := s.repo.Timeline(ctx, req.AnchorID, before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	return eventsToPort(records), nil
}

// Observations fetches events by ID, skipping unknown IDs.
func (s *MemoryServiceImpl) Observations(ctx context.Context, ids []int64) ([]*primary.MemoryEvent, error) {
	var out []*primary.MemoryEvent
	for _, id := range ids {
		record, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, eventToPort(record))
	}
	return out, nil
}

// InitSession registers a new working session.
func (s *MemoryServiceImpl) InitSession(ctx context.Context, req primary.InitSessionRequest) (*primary.Session, error) {
	record := &secondary.SessionRecord{
		ContentSessionID: req.SessionID,
		Project:          req.Project,
		InitialPrompt:    req.InitialPrompt,
	}
	id, err := s.repo.StartSession(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &primary.Session{
		ID:            id,
		SessionID:     record.ContentSessionID,
		Project:       record.Project,
		InitialPrompt: record.InitialPrompt,
	}, nil
}

// RecentSessions lists sessions, newest first.
func (s *MemoryServiceImpl) RecentSessions(ctx context.Context, limit int) ([]*primary.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := s.repo.RecentSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]*primary.Session, len(records))
	for i, r := range records {
		sessions[i] = &primary.Session{
			ID:            r.ID,
			SessionID:     r.ContentSessionID,
			Project:       r.Project,
			InitialPrompt: r.InitialPrompt,
			StartedAt:     r.StartedAt,
		}
	}
	return sessions, nil
}

// Stats summarizes the stream.
func (s *MemoryServiceImpl) Stats(ctx context.Context) (*primary.MemoryStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory stats: %w", err)
	}
	return &primary.MemoryStats{
		TotalEvents: stats.TotalEvents,
		ByType:      stats.ByType,
		Sessions:    stats.Sessions,
	}, nil
}

func eventsToPort(records []*secondary.MemoryEventRecord) []*primary.MemoryEvent {
	out := make([]*primary.MemoryEvent, len(records))
	for i, r := range records {
		out[i] = eventToPort(r)
	}
	return out
}

func eventToPort(r *secondary.MemoryEventRecord) *primary.MemoryEvent {
	return &primary.MemoryEvent{
		ID:         r.ID,
		TS:         r.TS,
		Type:       r.Type,
		Actor:      r.Actor,
		Scope:      r.Scope,
		Title:      r.Title,
		Text:       r.Text,
		Tags:       r.Tags,
		Refs:       r.Refs,
		Importance: r.Importance,
		Project:    r.Project,
		SessionID:  r.SessionID,
	}
}

var _ primary.MemoryService = (*MemoryServiceImpl)(nil)
