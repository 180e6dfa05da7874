package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConsumer receives from and sends to one queue.
type SQSConsumer struct {
	client   sqsAPI
	queueURL string
	logger   *zap.Logger
}

func NewSQSConsumer(cfg aws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return newSQSConsumer(sqs.NewFromConfig(cfg), queueURL, logger)
}

func newSQSConsumer(api sqsAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSConsumer{client: api, queueURL: queueURL, logger: logger}
}

// MessageHandler processes one message body. Returning an error leaves the
// message on the queue for redelivery.
type MessageHandler func(ctx context.Context, body string) error

const (
	receiveBatch      = 10
	longPollSeconds   = 20
	visibilitySeconds = 60
	receiveRetryDelay = 2 * time.Second
)

// StartPolling long-polls the queue until ctx is cancelled. Bodies published
// through an SNS subscription are unwrapped before reaching handler.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("SQS polling started", zap.String("queue_url", c.queueURL))
	for {
		if ctx.Err() != nil {
			c.logger.Info("SQS polling stopped")
			return ctx.Err()
		}
		if err := c.pollOnce(ctx, handler); err != nil && ctx.Err() == nil {
			c.logger.Warn("SQS receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
		}
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: receiveBatch,
		WaitTimeSeconds:     longPollSeconds,
		VisibilityTimeout:   visibilitySeconds,
	})
	if err != nil {
		return fmt.Errorf("receive from %s: %w", c.queueURL, err)
	}

	for _, msg := range out.Messages {
		if msg.Body == nil {
			continue
		}
		log := c.logger.With(zap.String("message_id", aws.ToString(msg.MessageId)))
		if err := handler(ctx, unwrapSNS(*msg.Body)); err != nil {
			log.Warn("SQS message left for redelivery", zap.Error(err))
			continue
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Warn("SQS delete failed", zap.Error(err))
		}
	}
	return nil
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// unwrapSNS returns the inner message of an SNS notification, or body as-is.
func unwrapSNS(body string) string {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Type != "Notification" {
		return body
	}
	return env.Message
}

// SendMessage enqueues one body.
func (c *SQSConsumer) SendMessage(ctx context.Context, body string) error {
	_, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &c.queueURL,
		MessageBody: &body,
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.queueURL, err)
	}
	return nil
}
