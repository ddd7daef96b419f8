package utils

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := NewExponentialBackoff()
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if got := b.NextDelay(); got != w*time.Second {
			t.Fatalf("delay %d = %v, want %v", i, got, w*time.Second)
		}
	}

	b.Reset()
	if got := b.NextDelay(); got != time.Second {
		t.Fatalf("delay after Reset = %v, want 1s", got)
	}
}
