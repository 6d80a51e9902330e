package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

const (
	AggregateTypeItem     = "item"
	EventTypeItemIngested = "ITEM_INGESTED"
)

// ItemIngestedPayload is the outbox payload announcing a stored item.
type ItemIngestedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	ItemID      string    `json:"item_id"`
	Link        string    `json:"link"`
	Site        string    `json:"site"`
	Title       string    `json:"title"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	ActualPrice float64   `json:"actual_price"`
	Currency    string    `json:"currency"`
	Created     bool      `json:"created"`
}

// ItemRepository upserts validated items and queues one ITEM_INGESTED event
// per item in the same transaction.
type ItemRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewItemRepository(db *DB, outbox *OutboxRepository, logger *slog.Logger) *ItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemRepository{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "item_repository"),
	}
}

func (r *ItemRepository) Name() string {
	return "postgres"
}

// WriteItems stores every item or none of them.
func (r *ItemRepository) WriteItems(ctx context.Context, items []models.Item) error {
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return err
		}
	}

	var created int
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		for _, item := range items {
			id, inserted, err := upsertItem(ctx, tx, item)
			if err != nil {
				return err
			}
			if inserted {
				created++
			}

			event, err := itemIngestedEvent(id, inserted, item)
			if err != nil {
				return err
			}
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write items: %w", err)
	}

	r.logger.Info("items stored", "count", len(items), "created", created, "updated", len(items)-created)
	return nil
}

func upsertItem(ctx context.Context, tx pgx.Tx, item models.Item) (uuid.UUID, bool, error) {
	// xmax is zero only for freshly inserted rows.
	var (
		id       uuid.UUID
		inserted bool
	)
	err := tx.QueryRow(ctx, `
		INSERT INTO items (link, site, title, photo_url, actual_price, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (link) DO UPDATE SET
			title = EXCLUDED.title,
			photo_url = EXCLUDED.photo_url,
			actual_price = EXCLUDED.actual_price,
			currency = EXCLUDED.currency,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`,
		item.Link, SiteOf(item.Link), *item.Title, item.PhotoURL, *item.ActualPrice, currencyOf(item),
	).Scan(&id, &inserted)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to upsert item %s: %w", item.Link, err)
	}
	return id, inserted, nil
}

func itemIngestedEvent(id uuid.UUID, created bool, item models.Item) (*OutboxEvent, error) {
	payload := ItemIngestedPayload{
		EventID:     uuid.New().String(),
		EventType:   EventTypeItemIngested,
		Timestamp:   time.Now().UTC(),
		ItemID:      id.String(),
		Link:        item.Link,
		Site:        SiteOf(item.Link),
		Title:       *item.Title,
		ActualPrice: *item.ActualPrice,
		Currency:    currencyOf(item),
		Created:     created,
	}
	if item.PhotoURL != nil {
		payload.PhotoURL = *item.PhotoURL
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateTypeItem,
		AggregateID:   id.String(),
		EventType:     EventTypeItemIngested,
		Payload:       data,
	}, nil
}

func validateItem(item models.Item) error {
	switch {
	case item.Link == "":
		return errors.New("item link is required")
	case item.Title == nil || strings.TrimSpace(*item.Title) == "":
		return fmt.Errorf("item %s has no title", item.Link)
	case item.ActualPrice == nil || *item.ActualPrice <= 0:
		return fmt.Errorf("item %s has no positive price", item.Link)
	}
	return nil
}

func currencyOf(item models.Item) string {
	if item.Currency == "" {
		return models.DefaultCurrency
	}
	return item.Currency
}

// SiteOf names the retailer behind link by its registrable host label.
func SiteOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}
