package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsClient_RecordCount(t *testing.T) {
	m := &cloudWatchMock{}
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	mc := NewMetricsClient(m, "Storefront/Checkout")
	mc.nowFunc = func() time.Time { return now }

	err := mc.RecordCount(context.Background(), MetricOrdersPlaced, map[string]string{
		"PaymentMethod": "COD",
		"Env":           "test",
	})
	require.NoError(t, err)

	require.Len(t, m.calls, 1)
	in := m.calls[0]
	assert.Equal(t, "Storefront/Checkout", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	d := in.MetricData[0]
	assert.Equal(t, MetricOrdersPlaced, *d.MetricName)
	assert.Equal(t, 1.0, *d.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, d.Unit)
	assert.Equal(t, now, *d.Timestamp)

	require.Len(t, d.Dimensions, 2)
	assert.Equal(t, "Env", *d.Dimensions[0].Name)
	assert.Equal(t, "PaymentMethod", *d.Dimensions[1].Name)
	assert.Equal(t, "COD", *d.Dimensions[1].Value)
}

func TestMetricsClient_RecordOrderPlacedSendsOneRequest(t *testing.T) {
	m := &cloudWatchMock{}
	mc := NewMetricsClient(m, "ns")

	require.NoError(t, mc.RecordOrderPlaced(context.Background(), 180000, map[string]string{"PaymentMethod": "VNPAY"}))
	require.Len(t, m.calls, 1)
	data := m.calls[0].MetricData
	require.Len(t, data, 2)

	assert.Equal(t, MetricOrdersPlaced, *data[0].MetricName)
	assert.Equal(t, 1.0, *data[0].Value)
	assert.Equal(t, cwtypes.StandardUnitCount, data[0].Unit)

	assert.Equal(t, MetricOrderAmount, *data[1].MetricName)
	assert.Equal(t, 180000.0, *data[1].Value)
	assert.Equal(t, cwtypes.StandardUnitNone, data[1].Unit)
	assert.Equal(t, "VNPAY", *data[1].Dimensions[0].Value)
	assert.Equal(t, *data[0].Timestamp, *data[1].Timestamp)
}

func TestMetricsClient_PutMetricsEmptyIsNoop(t *testing.T) {
	m := &cloudWatchMock{}
	require.NoError(t, NewMetricsClient(m, "ns").PutMetrics(context.Background()))
	assert.Empty(t, m.calls)
}

func TestMetricsClient_WrapsError(t *testing.T) {
	m := &cloudWatchMock{err: errors.New("throttled")}
	mc := NewMetricsClient(m, "ns")

	err := mc.RecordCount(context.Background(), MetricPaymentsFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put metric PaymentsFailed")
}
