package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const logRetentionDays = 30

type logsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsClient ships log lines to one CloudWatch Logs stream. It is an
// io.Writer so it can be teed into the zap core.
type CloudWatchLogsClient struct {
	api    logsAPI
	group  string
	stream string
	errOut io.Writer
	now    func() time.Time

	mu sync.Mutex
}

// NewCloudWatchLogsClient creates the log group if needed and a fresh stream
// named "<serviceName>-<host>-<unix time>".
func NewCloudWatchLogsClient(ctx context.Context, cfg aws.Config, logGroupName, serviceName string) (*CloudWatchLogsClient, error) {
	host, _ := os.Hostname()
	stream := fmt.Sprintf("%s-%s-%d", serviceName, host, time.Now().Unix())
	return newCloudWatchLogsClient(ctx, cloudwatchlogs.NewFromConfig(cfg), logGroupName, stream)
}

func newCloudWatchLogsClient(ctx context.Context, api logsAPI, group, stream string) (*CloudWatchLogsClient, error) {
	if group == "" {
		group = "/trustaustralia/orders"
	}
	c := &CloudWatchLogsClient{api: api, group: group, stream: stream, errOut: os.Stderr, now: time.Now}

	if _, err := api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: aws.String(group)}); err != nil {
		var exists *types.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return nil, fmt.Errorf("create log group %s: %w", group, err)
		}
	}
	if _, err := api.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(group),
		RetentionInDays: aws.Int32(logRetentionDays),
	}); err != nil {
		return nil, fmt.Errorf("set retention on %s: %w", group, err)
	}
	if _, err := api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	}); err != nil {
		return nil, fmt.Errorf("create log stream %s: %w", stream, err)
	}
	return c, nil
}

// Write sends p as one event. It never fails: shipping errors go to stderr so
// local logging keeps working when CloudWatch is unreachable.
func (c *CloudWatchLogsClient) Write(p []byte) (int, error) {
	msg := bytes.TrimRight(p, "\n")
	if len(msg) == 0 {
		return len(p), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	_, err := c.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(c.group),
		LogStreamName: aws.String(c.stream),
		LogEvents: []types.InputLogEvent{{
			Message:   aws.String(string(msg)),
			Timestamp: aws.Int64(c.now().UnixMilli()),
		}},
	})
	c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(c.errOut, "cloudwatch logs: %v\n", err)
	}
	return len(p), nil
}
