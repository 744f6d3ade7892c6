package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		tick float64
		want float64
	}{
		{"round down", 1.232, 0.01, 1.23},
		{"round up", 1.238, 0.01, 1.24},
		{"nickel tick", 1.23, 0.05, 1.25},
		{"zero tick returns input", 1.2345, 0, 1.2345},
		{"negative tick returns input", 1.2345, -0.01, 1.2345},
		{"exact tick unchanged", 2.50, 0.05, 2.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToTick(tt.x, tt.tick)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RoundToTick(%v, %v) = %v, want %v", tt.x, tt.tick, got, tt.want)
			}
		})
	}
}

func TestFloorAndCeilToTick(t *testing.T) {
	if got := FloorToTick(1.239, 0.01); math.Abs(got-1.23) > 1e-9 {
		t.Errorf("FloorToTick = %v, want 1.23", got)
	}
	if got := CeilToTick(1.231, 0.01); math.Abs(got-1.24) > 1e-9 {
		t.Errorf("CeilToTick = %v, want 1.24", got)
	}
	// Floor never exceeds ceil for the same input
	x, tick := 3.333, 0.05
	if FloorToTick(x, tick) > CeilToTick(x, tick) {
		t.Error("FloorToTick exceeds CeilToTick")
	}
}

func TestTicksBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		tick float64
		want int
	}{
		{"five cents is five ticks", 1.00, 1.05, 0.01, 5},
		{"direction does not matter", 1.05, 1.00, 0.01, 5},
		{"sub-tick move is zero", 1.00, 1.004, 0.01, 0},
		{"zero tick", 1.00, 2.00, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TicksBetween(tt.a, tt.b, tt.tick); got != tt.want {
				t.Errorf("TicksBetween(%v, %v, %v) = %d, want %d", tt.a, tt.b, tt.tick, got, tt.want)
			}
		})
	}
}
