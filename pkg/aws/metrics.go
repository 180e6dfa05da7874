package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Order pipeline metric names. HTTP metrics are emitted by the request middleware.
const (
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	MetricOrdersCreated      = "OrdersCreated"
	MetricOrdersCompleted    = "OrdersCompleted"
	MetricOrdersFailed       = "OrdersFailed"
	MetricPaymentFailed      = "PaymentFailed"
	MetricPaidAfterFailure   = "PaidAfterFailure"
	MetricConfirmationsSent  = "ConfirmationsSent"
	MetricReconcileEnqueued  = "ReconcileEnqueued"
	MetricDocumentsGenerated = "DocumentsGenerated"
	MetricSQSMessages        = "SQSMessagesProcessed"
)

type metricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient sends single data points to CloudWatch. A disabled (or nil)
// client accepts every call and sends nothing, so callers never branch on it.
type MetricsClient struct {
	client    metricPutter
	namespace string
	enabled   bool
	now       func() time.Time
}

func NewMetricsClient(cfg aws.Config, namespace string, enabled bool) *MetricsClient {
	return newMetricsClient(cloudwatch.NewFromConfig(cfg), namespace, enabled)
}

func newMetricsClient(client metricPutter, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "TrustAustralia"
	}
	return &MetricsClient{client: client, namespace: namespace, enabled: enabled, now: time.Now}
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordCount adds one to a counter.
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.put(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

// RecordLatency records d in milliseconds.
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error {
	return m.put(ctx, metricName, float64(d.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsClient) put(ctx context.Context, name string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if !m.IsEnabled() {
		return nil
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(m.now()),
			Dimensions: dimensionList(dimensions),
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}

// dimensionList drops empty values and sorts by name; CloudWatch treats each
// distinct dimension set as its own series.
func dimensionList(dimensions map[string]string) []types.Dimension {
	names := make([]string, 0, len(dimensions))
	for k, v := range dimensions {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	dims := make([]types.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(dimensions[k])})
	}
	return dims
}
