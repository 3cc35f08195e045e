package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the checkout worker.
const (
	MetricOrdersPlaced         = "OrdersPlaced"
	MetricOrderAmount          = "OrderAmount"
	MetricPaymentsReconciled   = "PaymentsReconciled"
	MetricPaymentsFailed       = "PaymentsFailed"
	MetricUnknownCheckoutEvent = "UnknownCheckoutEvent"
)

// MetricsClient wraps CloudWatch PutMetricData for a single namespace.
type MetricsClient struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsClient returns a metrics client writing into namespace.
func NewMetricsClient(client CloudWatchAPI, namespace string) *MetricsClient {
	return &MetricsClient{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Datum is one data point of a PutMetricData request.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// PutMetric sends a single data point.
func (m *MetricsClient) PutMetric(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dimensions map[string]string) error {
	return m.PutMetrics(ctx, Datum{Name: name, Value: value, Unit: unit, Dimensions: dimensions})
}

// PutMetrics sends all data points in one request, so they are stored
// together or not at all.
func (m *MetricsClient) PutMetrics(ctx context.Context, data ...Datum) error {
	if len(data) == 0 {
		return nil
	}
	now := sdkaws.Time(m.nowFunc())
	in := &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: make([]cwtypes.MetricDatum, 0, len(data)),
	}
	names := make([]string, 0, len(data))
	for _, d := range data {
		in.MetricData = append(in.MetricData, cwtypes.MetricDatum{
			MetricName: sdkaws.String(d.Name),
			Value:      sdkaws.Float64(d.Value),
			Unit:       d.Unit,
			Timestamp:  now,
			Dimensions: toDimensions(d.Dimensions),
		})
		names = append(names, d.Name)
	}
	if _, err := m.client.PutMetricData(ctx, in); err != nil {
		return fmt.Errorf("put metric %s: %w", strings.Join(names, ","), err)
	}
	return nil
}

// RecordCount increments a counter metric.
func (m *MetricsClient) RecordCount(ctx context.Context, name string, dimensions map[string]string) error {
	return m.PutMetric(ctx, name, 1, cwtypes.StandardUnitCount, dimensions)
}

// RecordOrderPlaced counts one order and records its amount in VND, in a
// single request.
func (m *MetricsClient) RecordOrderPlaced(ctx context.Context, amount float64, dimensions map[string]string) error {
	return m.PutMetrics(ctx,
		Datum{Name: MetricOrdersPlaced, Value: 1, Unit: cwtypes.StandardUnitCount, Dimensions: dimensions},
		Datum{Name: MetricOrderAmount, Value: amount, Unit: cwtypes.StandardUnitNone, Dimensions: dimensions},
	)
}

// dimensions are sorted by name so identical maps produce identical requests
func toDimensions(in map[string]string) []cwtypes.Dimension {
	if len(in) == 0 {
		return nil
	}
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	dims := make([]cwtypes.Dimension, 0, len(in))
	for _, k := range names {
		dims = append(dims, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(in[k]),
		})
	}
	return dims
}
