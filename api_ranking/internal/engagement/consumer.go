package engagement

import (
	"context"
	"encoding/json"
	"errors"

	"frameworks/api_ranking/internal/content"
	"frameworks/pkg/kafka"
	"frameworks/pkg/logging"
)

// Consumer feeds engagement events from Kafka into a Service.
type Consumer struct {
	service *Service
	logger  logging.Logger
}

func NewConsumer(service *Service, logger logging.Logger) *Consumer {
	return &Consumer{service: service, logger: logging.OrDiscard(logger)}
}

// Handle is a kafka.Handler. Messages that can never succeed are dropped so
// they do not block the partition; store failures are returned for retry.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	log := c.logger.WithFields(logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.WithError(err).Warn("Dropping malformed engagement event")
		return nil
	}

	_, err := c.service.Record(ctx, ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, content.ErrNotFound):
		log.WithError(err).WithField("item_id", ev.ItemID).Warn("Dropping engagement event")
		return nil
	default:
		return err
	}
}
