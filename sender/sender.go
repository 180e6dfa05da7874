package sender

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (SendResult, error)
}

// LogSender writes emails to the log instead of delivering them. It is used
// when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	s.logger.Info("email not delivered (no SMTP configured)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	now := time.Now()
	return SendResult{MessageID: fmt.Sprintf("log-%d", now.UnixNano()), SentAt: now}, nil
}
