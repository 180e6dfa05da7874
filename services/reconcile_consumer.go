package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	apperrors "github.com/longle289/TrustAustralia/common/errors"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"go.uber.org/zap"
)

type messagePoller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// ReconcileConsumer drains the reconcile queue. A handler error leaves the
// message on the queue so SQS redelivers it.
type ReconcileConsumer struct {
	poller   messagePoller
	verifier *VerifyService
	metrics  MetricsRecorder
	logger   *zap.Logger
}

func NewReconcileConsumer(poller messagePoller, verifier *VerifyService, metrics MetricsRecorder, logger *zap.Logger) *ReconcileConsumer {
	return &ReconcileConsumer{
		poller:   poller,
		verifier: verifier,
		metrics:  metricsOrNop(metrics),
		logger:   logger,
	}
}

func (c *ReconcileConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting ReconcileConsumer (SQS)")
	return c.poller.StartPolling(ctx, c.Handle)
}

func (c *ReconcileConsumer) Handle(ctx context.Context, body string) error {
	var msg ReconcileMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil || strings.TrimSpace(msg.SessionID) == "" {
		// can never succeed, so let it be deleted
		c.logger.Warn("Dropping malformed reconcile message", zap.String("body", body), zap.Error(err))
		return nil
	}
	log := c.logger.With(zap.String("session_id", msg.SessionID))

	res, err := c.verifier.Reconcile(ctx, msg.SessionID)
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, ErrOrderUnrecoverable):
		log.Error("Reconcile abandoned", zap.Error(err))
		recordCount(c.metrics, awspkg.MetricSQSMessages, map[string]string{"Outcome": "abandoned"})
		return nil
	case err != nil:
		log.Warn("Reconcile failed, will retry", zap.Error(err))
		recordCount(c.metrics, awspkg.MetricSQSMessages, map[string]string{"Outcome": "retry"})
		return err
	}

	if res != nil {
		log.Info("Session reconciled",
			zap.String("order_id", res.Order.ID.String()),
			zap.Bool("transitioned", res.Transitioned),
			zap.Bool("notified", res.Notified),
		)
	}
	recordCount(c.metrics, awspkg.MetricSQSMessages, map[string]string{"Outcome": "ok"})
	return nil
}
