package cache

import (
	"testing"
	"time"
)

func TestExpiryStaysWithinSpread(t *testing.T) {
	e := NewExpiry(time.Minute)
	for i := 0; i < 200; i++ {
		ttl := e.Next()
		if ttl < time.Minute || ttl > time.Minute+6*time.Second {
			t.Fatalf("ttl %v outside [1m, 1m6s]", ttl)
		}
	}
}

func TestExpiryWithoutBase(t *testing.T) {
	if ttl := NewExpiry(0).Next(); ttl != 0 {
		t.Fatalf("expected 0, got %v", ttl)
	}
	if ttl := NewExpiry(-time.Second).Next(); ttl != 0 {
		t.Fatalf("expected 0, got %v", ttl)
	}
}
