// Package catalog reads and rewrites the per-event tier document. Events are
// created elsewhere in the platform; this service only consumes the catalog,
// and only the order commit path rewrites it (the final Remaining deduction).
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
)

var ErrEventNotFound = errors.New("event not found")

type Store struct {
	Bun *bun.DB
}

func NewStore(bunDB *bun.DB) *Store {
	return &Store{Bun: bunDB}
}

// GetEvent fetches an event by id or slug.
func (s *Store) GetEvent(ctx context.Context, idOrSlug string) (*models.Event, error) {
	var event models.Event
	err := s.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", idOrSlug).
		WhereOr("slug = ?", idOrSlug).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventTx fetches an event by id inside the caller's transaction, so the
// store's conflict detection covers the catalog read.
func GetEventTx(ctx context.Context, idb bun.IDB, eventID string) (*models.Event, error) {
	var event models.Event
	err := idb.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateTiers persists the event's tier catalog back onto its row. Must run
// in the same transaction that decided the new Remaining values.
func UpdateTiers(ctx context.Context, idb bun.IDB, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	_, err := idb.NewUpdate().
		Model(event).
		Column("tiers", "updated_at").
		Where("event_id = ?", event.ID).
		Exec(ctx)
	return err
}

// CreateEvent inserts a new event document. Used by catalog publication and
// test fixtures.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	_, err := s.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}
