package sidecar

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// closedURL returns a ws URL nothing listens on.
func closedURL(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "ws://" + addr + "/ws"
}

func TestDialWithRetry_Success(t *testing.T) {
	_, srv := newFakeSidecar(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := DialWithRetry(ctx, wsURL(srv), "secret", RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("DialWithRetry: %v", err)
	}
	c.Close()
}

func TestDialWithRetry_GivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := DialWithRetry(ctx, closedURL(t), "", RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("took too long: %v", time.Since(start))
	}
}

func TestDialWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := DialWithRetry(ctx, closedURL(t), "", RetryConfig{MaxRetries: 100, BaseDelay: time.Second, MaxDelay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	for attempt := 0; attempt < 10; attempt++ {
		want := base << uint(attempt)
		if want > max {
			want = max
		}
		got := backoffWithJitter(base, max, attempt)
		if got < want*3/4 || got > want*5/4 {
			t.Errorf("attempt %d: %v outside [%v, %v]", attempt, got, want*3/4, want*5/4)
		}
	}
}
