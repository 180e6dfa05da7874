package aws

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogs struct {
	groupErr error
	putErr   error
	streams  []string
	events   []string
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogs) PutRetentionPolicy(context.Context, *cloudwatchlogs.PutRetentionPolicyInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(_ context.Context, in *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.streams = append(f.streams, aws.ToString(in.LogStreamName))
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	for _, e := range in.LogEvents {
		f.events = append(f.events, aws.ToString(e.Message))
	}
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func TestCloudWatchLogs_ExistingGroupIsReused(t *testing.T) {
	api := &fakeLogs{groupErr: &types.ResourceAlreadyExistsException{}}
	c, err := newCloudWatchLogsClient(context.Background(), api, "", "orders-1")
	require.NoError(t, err)
	assert.Equal(t, "/trustaustralia/orders", c.group)
	assert.Equal(t, []string{"orders-1"}, api.streams)
}

func TestCloudWatchLogs_GroupFailure(t *testing.T) {
	api := &fakeLogs{groupErr: errors.New("access denied")}
	_, err := newCloudWatchLogsClient(context.Background(), api, "/g", "s")
	assert.ErrorContains(t, err, "create log group /g")
}

func TestCloudWatchLogs_Write(t *testing.T) {
	api := &fakeLogs{}
	c, err := newCloudWatchLogsClient(context.Background(), api, "/g", "s")
	require.NoError(t, err)

	n, err := c.Write([]byte("{\"msg\":\"order completed\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	_, _ = c.Write([]byte("\n"))
	assert.Equal(t, []string{`{"msg":"order completed"}`}, api.events)
}

func TestCloudWatchLogs_WriteErrorGoesToStderr(t *testing.T) {
	api := &fakeLogs{}
	c, err := newCloudWatchLogsClient(context.Background(), api, "/g", "s")
	require.NoError(t, err)
	var errOut bytes.Buffer
	c.errOut = &errOut
	api.putErr = errors.New("throttled")

	n, err := c.Write([]byte("line"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, errOut.String(), "throttled")
}
