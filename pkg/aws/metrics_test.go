package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPutter struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (r *recordingPutter) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	r.inputs = append(r.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, r.err
}

func TestMetricsClient_RecordCount(t *testing.T) {
	p := &recordingPutter{}
	m := newMetricsClient(p, "", true)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	require.NoError(t, m.RecordCount(context.Background(), MetricOrdersCompleted, map[string]string{
		"Source":  "webhook",
		"Product": "discretionary",
		"Empty":   "",
	}))

	require.Len(t, p.inputs, 1)
	in := p.inputs[0]
	assert.Equal(t, "TrustAustralia", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 1)
	d := in.MetricData[0]
	assert.Equal(t, MetricOrdersCompleted, aws.ToString(d.MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(d.Value))
	assert.Equal(t, types.StandardUnitCount, d.Unit)
	assert.Equal(t, at, aws.ToTime(d.Timestamp))
	require.Len(t, d.Dimensions, 2)
	assert.Equal(t, "Product", aws.ToString(d.Dimensions[0].Name))
	assert.Equal(t, "Source", aws.ToString(d.Dimensions[1].Name))
}

func TestMetricsClient_RecordLatency(t *testing.T) {
	p := &recordingPutter{}
	m := newMetricsClient(p, "Orders", true)

	require.NoError(t, m.RecordLatency(context.Background(), MetricHTTPLatency, 1500*time.Millisecond, nil))
	d := p.inputs[0].MetricData[0]
	assert.Equal(t, 1500.0, aws.ToFloat64(d.Value))
	assert.Equal(t, types.StandardUnitMilliseconds, d.Unit)
	assert.Empty(t, d.Dimensions)
}

func TestMetricsClient_DisabledSendsNothing(t *testing.T) {
	p := &recordingPutter{}
	require.NoError(t, newMetricsClient(p, "", false).RecordCount(context.Background(), MetricOrdersCreated, nil))
	assert.Empty(t, p.inputs)

	var nilClient *MetricsClient
	assert.False(t, nilClient.IsEnabled())
	assert.NoError(t, nilClient.RecordCount(context.Background(), MetricOrdersCreated, nil))
}

func TestMetricsClient_PutError(t *testing.T) {
	p := &recordingPutter{err: errors.New("throttled")}
	err := newMetricsClient(p, "", true).RecordCount(context.Background(), MetricPaymentFailed, nil)
	assert.ErrorContains(t, err, "put metric PaymentFailed")
}
