package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
)

// EventPublisher announces order lifecycle changes to other systems.
// Publishing is best-effort: callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

type SNSEventPublisher struct {
	client   awspkg.SNSPublisher
	topicArn string
}

func NewSNSEventPublisher(client awspkg.SNSPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{client: client, topicArn: topicArn}
}

func (p *SNSEventPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.client.Publish(ctx, p.topicArn, body, map[string]string{
		"event_type":   event.Type,
		"product_type": event.ProductType,
	})
}

// MultiPublisher fans an event out to every publisher and reports all failures.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
