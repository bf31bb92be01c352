// Package service wires the cache, duplicate detector, scheduler and
// composer into the operation surface consumed by CLI/GUI/tray
// collaborators.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/dedup"
	"github.com/muralhq/mural/internal/domain"
	"github.com/muralhq/mural/internal/event"
	"github.com/muralhq/mural/internal/query"
	"github.com/muralhq/mural/internal/rotation"
)

// closeTimeout bounds how long shutdown waits for an in-flight apply.
const closeTimeout = 10 * time.Second

// Service is the explicit application object: constructed with
// configuration, closed explicitly. No ambient global state.
type Service struct {
	store     domain.Store
	detector  *dedup.Detector
	scheduler *rotation.Scheduler
	bus       *event.Bus
	logger    zerolog.Logger
}

// New assembles the service from its already-constructed parts.
func New(
	store domain.Store,
	detector *dedup.Detector,
	scheduler *rotation.Scheduler,
	bus *event.Bus,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:     store,
		detector:  detector,
		scheduler: scheduler,
		bus:       bus,
		logger:    logger,
	}
}

// Ingest stores downloaded image bytes. See domain.Store.Ingest for the
// dedup and soft-cap semantics.
func (s *Service) Ingest(ctx context.Context, data []byte, meta domain.SourceMeta, force bool) (domain.CacheEntry, error) {
	return s.store.Ingest(ctx, data, meta, force)
}

// Get returns one entry by id.
func (s *Service) Get(id string) (domain.CacheEntry, error) {
	return s.store.Get(id)
}

// List returns entries matching the filter. When the filter carries a
// free-text query the result is ranked by match quality, otherwise by
// recency.
func (s *Service) List(f domain.Filter) []domain.CacheEntry {
	var entries []domain.CacheEntry
	for e := range s.store.List(f) {
		entries = append(entries, e)
	}
	return query.Rank(f.Query, entries)
}

// Delete removes an entry outright. User-initiated deletion ignores
// protection status.
func (s *Service) Delete(id string) error {
	return s.store.Delete(id)
}

// Rate sets an entry's star rating (0-5).
func (s *Service) Rate(id string, stars int) (domain.CacheEntry, error) {
	return s.store.Update(id, domain.Mutation{Rating: &stars})
}

// ToggleFavorite flips the favorite flag and returns the updated entry.
func (s *Service) ToggleFavorite(id string) (domain.CacheEntry, error) {
	e, err := s.store.Get(id)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	fav := !e.IsFavorite
	return s.store.Update(id, domain.Mutation{Favorite: &fav})
}

// ToggleStar flips the starred flag and returns the updated entry.
func (s *Service) ToggleStar(id string) (domain.CacheEntry, error) {
	e, err := s.store.Get(id)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	starred := !e.IsStarred
	return s.store.Update(id, domain.Mutation{Starred: &starred})
}

// PreviewEviction shows what the eviction policy would remove next,
// without removing anything.
func (s *Service) PreviewEviction() []domain.CacheEntry {
	return s.store.PreviewEviction()
}

// TriggerRotation initiates a rotation for the given trigger kind,
// subject to debounce and the apply-in-flight lock.
func (s *Service) TriggerRotation(ctx context.Context, kind domain.TriggerKind) error {
	return s.scheduler.Trigger(ctx, kind)
}

// ApplyToMonitor manually overrides one monitor's wallpaper, bypassing
// selection but keeping the composer's atomicity guarantee.
func (s *Service) ApplyToMonitor(ctx context.Context, monitorIndex int, entryID string) error {
	return s.scheduler.ApplyManual(ctx, monitorIndex, entryID)
}

// Run starts the scheduler's timer loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.scheduler.Run(ctx)
}

// Pause suppresses scheduled rotation; external triggers keep working.
func (s *Service) Pause() { s.scheduler.Pause() }

// Resume re-enables scheduled rotation.
func (s *Service) Resume() { s.scheduler.Resume() }

// Subscribe registers an observer channel for applied events.
func (s *Service) Subscribe(id string, ch chan<- domain.AppliedEvent) error {
	return s.bus.Subscribe(id, ch)
}

// Unsubscribe removes an observer.
func (s *Service) Unsubscribe(id string) {
	s.bus.Unsubscribe(id)
}

// Close shuts down the scheduler (bounded wait for an in-flight apply),
// the event bus and the store, in that order.
func (s *Service) Close() error {
	if err := s.scheduler.Close(closeTimeout); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler shutdown timed out")
	}
	s.bus.Close()
	return s.store.Close()
}
