package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSubmit_IncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmit("BTCUSD", "BUY", 2, 1.5, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.OrdersTotal.WithLabelValues("BTCUSD", "BUY")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.TradesTotal.WithLabelValues("BTCUSD")))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.TradeVolume.WithLabelValues("BTCUSD")))
}

func TestRecordSubmit_NoTradesSkipsVolumeAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmit("ETHUSD", "SELL", 0, 0, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.OrdersTotal.WithLabelValues("ETHUSD", "SELL")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.TradesTotal.WithLabelValues("ETHUSD")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.TradeVolume.WithLabelValues("ETHUSD")))
}

func TestRecordCancel_IncrementsCancelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCancel("BTCUSD")
	c.RecordCancel("BTCUSD")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.OrdersCancelled.WithLabelValues("BTCUSD")))
}

func TestRecordReservationFailure_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReservationFailure("insufficient_balance")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.ReservationFail.WithLabelValues("insufficient_balance")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.ReservationFail.WithLabelValues("insufficient_asset")))
}
