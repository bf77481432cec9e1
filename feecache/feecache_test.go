package feecache

import (
	"errors"
	"testing"

	"github.com/metaid/utxoquery/chain"
)

type fakeEstimator struct {
	batchCalls int
	relayCalls int
	estimates  chain.FeeEstimates
	relayErr   error
	relay      float64
}

func (f *fakeEstimator) EstimateSmartFeeBatch(targets []uint16) chain.FeeEstimates {
	f.batchCalls++
	return f.estimates
}

func (f *fakeEstimator) RelayFee() (float64, error) {
	f.relayCalls++
	if f.relayErr != nil {
		return 0, f.relayErr
	}
	return f.relay, nil
}

func TestEstimateFeeFetchesOnce(t *testing.T) {
	fake := &fakeEstimator{estimates: chain.FeeEstimates{6: 12.5}}
	c := New(fake, false)

	rate, ok := c.EstimateFee(6)
	if !ok || rate != 12.5 {
		t.Fatalf("EstimateFee(6) = %v, %v; want 12.5, true", rate, ok)
	}
	// A second read within TTL should not hit the daemon again.
	if _, _ = c.EstimateFee(6); fake.batchCalls != 1 {
		t.Fatalf("expected exactly 1 daemon call within TTL, got %d", fake.batchCalls)
	}
}

func TestEstimateFeeUnknownTarget(t *testing.T) {
	fake := &fakeEstimator{estimates: chain.FeeEstimates{6: 12.5}}
	c := New(fake, false)
	if _, ok := c.EstimateFee(999); ok {
		t.Fatalf("expected no estimate for an unrecognized target")
	}
}

func TestRegtestShortCircuitsToRelayFee(t *testing.T) {
	fake := &fakeEstimator{relay: 1.0}
	c := New(fake, true)

	rate, ok := c.EstimateFee(6)
	if !ok || rate != 1.0 {
		t.Fatalf("EstimateFee on regtest = %v, %v; want relay fee 1.0, true", rate, ok)
	}
	if fake.batchCalls != 0 {
		t.Fatalf("regtest should never call EstimateSmartFeeBatch, got %d calls", fake.batchCalls)
	}
}

func TestRelayFeeMemoizedForever(t *testing.T) {
	fake := &fakeEstimator{relay: 2.0}
	c := New(fake, false)

	for i := 0; i < 3; i++ {
		fee, err := c.RelayFee()
		if err != nil || fee != 2.0 {
			t.Fatalf("RelayFee() = %v, %v; want 2.0, nil", fee, err)
		}
	}
	if fake.relayCalls != 1 {
		t.Fatalf("expected relay fee fetched exactly once, got %d calls", fake.relayCalls)
	}
}

func TestRelayFeeErrorNotMemoized(t *testing.T) {
	fake := &fakeEstimator{relayErr: errors.New("connection refused")}
	c := New(fake, false)

	if _, err := c.RelayFee(); err == nil {
		t.Fatalf("expected error from first RelayFee call")
	}
	if _, err := c.RelayFee(); err == nil {
		t.Fatalf("expected error to persist until a successful fetch")
	}
	if fake.relayCalls != 2 {
		t.Fatalf("expected a retry after a failed fetch, got %d calls", fake.relayCalls)
	}
}
