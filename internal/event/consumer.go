package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/internal/service"
	apperrors "github.com/utafrali/facetsearch/pkg/errors"
	pkgkafka "github.com/utafrali/facetsearch/pkg/kafka"
	"github.com/utafrali/facetsearch/pkg/logger"
	"github.com/utafrali/facetsearch/pkg/validator"
)

// Event types published by the catalog service.
const (
	TypeListingCreated  = "listing.created"
	TypeListingUpdated  = "listing.updated"
	TypeListingDeleted  = "listing.deleted"
	TypeCategoryUpdated = "category.updated"
	TypeCategoryDeleted = "category.deleted"
)

// Topics consumed by the search service.
var (
	TopicListingCreated  = pkgkafka.Topic("listing", "created")
	TopicListingUpdated  = pkgkafka.Topic("listing", "updated")
	TopicListingDeleted  = pkgkafka.Topic("listing", "deleted")
	TopicCategoryUpdated = pkgkafka.Topic("category", "updated")
	TopicCategoryDeleted = pkgkafka.Topic("category", "deleted")
)

// Topics returns every topic the Consumer handles.
func Topics() []string {
	return []string{
		TopicListingCreated,
		TopicListingUpdated,
		TopicListingDeleted,
		TopicCategoryUpdated,
		TopicCategoryDeleted,
	}
}

// ListingDeletedData is the payload of a listing.deleted event.
type ListingDeletedData struct {
	ID string `json:"id"`
}

// CategoryEventData is the payload of category events.
type CategoryEventData struct {
	ID   string `json:"id"`
	Slug string `json:"slug" validate:"required,slug"`
}

// Consumer keeps the listing index and the schema cache in step with
// catalog events.
type Consumer struct {
	searchService *service.SearchService
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(searchService *service.SearchService, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		logger:        logger,
	}
}

// Handle processes a Kafka event based on its type. Unknown types are
// acknowledged and ignored.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TypeListingCreated, TypeListingUpdated:
		return c.handleListingUpserted(ctx, event)
	case TypeListingDeleted:
		return c.handleListingDeleted(ctx, event)
	case TypeCategoryUpdated, TypeCategoryDeleted:
		return c.handleCategoryChanged(ctx, event)
	default:
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleListingUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var item domain.Item
	if err := event.DecodeData(&item); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = event.AggregateID
	}

	if err := c.searchService.IndexListing(ctx, &item); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			// The listing breaks its category schema; retries cannot help.
			return fmt.Errorf("%w: index listing from %s event: %w", pkgkafka.ErrMalformedEvent, event.EventType, err)
		}
		return fmt.Errorf("index listing from %s event: %w", event.EventType, err)
	}
	return nil
}

func (c *Consumer) handleListingDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ListingDeletedData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	if err := c.searchService.DeleteListing(ctx, data.ID); err != nil {
		return fmt.Errorf("delete listing from deleted event: %w", err)
	}
	return nil
}

func (c *Consumer) handleCategoryChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data CategoryEventData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	if data.Slug == "" {
		data.Slug = event.AggregateID
	}
	if err := validator.Validate(data); err != nil {
		// Retrying cannot fix the payload.
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "dropping category event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return c.searchService.InvalidateCategory(ctx, data.Slug)
}
