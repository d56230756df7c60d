package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetricsRecordOperations(t *testing.T) {
	m := Ledger()
	before := testutil.ToFloat64(m.operations.WithLabelValues("mint", "ok"))
	m.ObserveOperation("mint", "", 3*time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("mint", "ok")); got != before+1 {
		t.Fatalf("expected mint counter to increase by one, got %v -> %v", before, got)
	}

	supply := new(big.Int).Mul(big.NewInt(1500), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	m.SetPrincipalSupply(supply)
	if got := testutil.ToFloat64(m.principalSupply); got != 1500 {
		t.Fatalf("expected supply gauge 1500, got %v", got)
	}
}

func TestNilLedgerMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveOperation("burn", "error", time.Second)
	m.AddRealizedInterest(big.NewInt(1))
	m.SetGlobalRate(big.NewInt(1))
	m.IncReplay()
	m.IncStreamDrop()
}
