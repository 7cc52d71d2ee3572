package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestObservePayment(t *testing.T) {
	beforeCount := testutil.ToFloat64(PaymentsRecorded.WithLabelValues("anticipated"))
	beforeAmount := testutil.ToFloat64(PaymentsAmount.WithLabelValues("anticipated"))

	ObservePayment("anticipated", decimal.RequireFromString("125.50"))

	if got := testutil.ToFloat64(PaymentsRecorded.WithLabelValues("anticipated")) - beforeCount; got != 1 {
		t.Errorf("Expected count to grow by 1, got %v", got)
	}
	if got := testutil.ToFloat64(PaymentsAmount.WithLabelValues("anticipated")) - beforeAmount; got != 125.5 {
		t.Errorf("Expected amount to grow by 125.5, got %v", got)
	}
}

func TestOverdueGauge(t *testing.T) {
	OverdueOperations.Set(4)
	if got := testutil.ToFloat64(OverdueOperations); got != 4 {
		t.Errorf("Expected gauge 4, got %v", got)
	}
}
