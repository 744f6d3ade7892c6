package mock

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/revred/odte/internal/marketdata"
)

var mockTS = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(DefaultConfig())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}

func TestGetSnapshot_Deterministic(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	a, err := p.GetSnapshot(ctx, "XSP", mockTS)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	b, err := p.GetSnapshot(ctx, "XSP", mockTS)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical requests must produce identical snapshots")
	}
}

func TestGetSnapshot_ChainShape(t *testing.T) {
	p := newProvider(t)
	snap, err := p.GetSnapshot(context.Background(), "XSP", mockTS)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("generated snapshot fails its own invariants: %v", err)
	}
	if snap.Timestamp != mockTS {
		t.Errorf("Timestamp = %v, want the request time", snap.Timestamp)
	}
	if snap.Expiry.Weekday() != time.Friday || !snap.Expiry.After(mockTS) {
		t.Errorf("Expiry = %v, want the next Friday close", snap.Expiry)
	}

	puts := snap.Strikes(marketdata.Put)
	if len(puts) != 25 {
		t.Fatalf("got %d put strikes, want 25", len(puts))
	}

	// Put |delta| must increase with strike; call |delta| must decrease.
	prevPut, prevCall := -1.0, 2.0
	for _, k := range puts {
		pq, _ := snap.Quote(k, marketdata.Put)
		cq, _ := snap.Quote(k, marketdata.Call)
		if !pq.HasGreeks || !cq.HasGreeks {
			t.Fatalf("missing greeks at %v", k)
		}
		if ad := -pq.Delta; ad < prevPut {
			t.Fatalf("put |delta| not increasing at strike %v", k)
		} else {
			prevPut = ad
		}
		if cq.Delta > prevCall {
			t.Fatalf("call delta not decreasing at strike %v", k)
		} else {
			prevCall = cq.Delta
		}
		if !pq.Liquid() || !cq.Liquid() {
			t.Fatalf("illiquid generated quote at strike %v", k)
		}
	}
}

func TestGetSnapshot_Unavailable(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.GetSnapshot(ctx, "SPX", mockTS)
	if !errors.Is(err, marketdata.ErrDataUnavailable) {
		t.Errorf("unknown symbol error = %v, want ErrDataUnavailable", err)
	}

	early := DefaultConfig().DataStart.Add(-time.Hour)
	_, err = p.GetSnapshot(ctx, "XSP", early)
	if !errors.Is(err, marketdata.ErrDataUnavailable) {
		t.Errorf("pre-history error = %v, want ErrDataUnavailable", err)
	}
}

func TestGetSnapshot_ContextCancelled(t *testing.T) {
	p := newProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.GetSnapshot(ctx, "XSP", mockTS); err == nil {
		t.Error("cancelled context should abort the request")
	}
}

func TestIVCyclesThroughRegimes(t *testing.T) {
	p := newProvider(t)
	lo, hi := 1.0, 0.0
	for d := 0; d < 21; d++ {
		ts := mockTS.Add(time.Duration(d) * 24 * time.Hour)
		snap, err := p.GetSnapshot(context.Background(), "XSP", ts)
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if snap.RefIV < lo {
			lo = snap.RefIV
		}
		if snap.RefIV > hi {
			hi = snap.RefIV
		}
	}
	if hi-lo < 0.05 {
		t.Errorf("IV range over three weeks = [%.3f, %.3f], want a visible cycle", lo, hi)
	}
}
