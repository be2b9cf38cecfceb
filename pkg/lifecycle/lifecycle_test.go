package lifecycle_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/manifest/pkg/lifecycle"
)

func TestReadyAfterStartup(t *testing.T) {
	lc := lifecycle.New()
	if lc.Ready() {
		t.Error("should not be ready before WaitForStartup")
	}

	var count atomic.Int32
	for range 3 {
		lc.OnStartup(func() { count.Add(1) })
	}
	lc.WaitForStartup()

	if !lc.Ready() {
		t.Error("should be ready after WaitForStartup")
	}
	if got := count.Load(); got != 3 {
		t.Errorf("startup hooks: got %d, want 3", got)
	}
}

func TestShutdown(t *testing.T) {
	t.Run("runs hooks", func(t *testing.T) {
		lc := lifecycle.New()

		var cleaned atomic.Bool
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			cleaned.Store(true)
		})

		if err := lc.Shutdown(5 * time.Second); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
		if !cleaned.Load() {
			t.Error("shutdown hook did not execute")
		}
	})

	t.Run("times out", func(t *testing.T) {
		lc := lifecycle.New()
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			time.Sleep(500 * time.Millisecond)
		})

		if err := lc.Shutdown(50 * time.Millisecond); err == nil {
			t.Error("expected timeout error, got nil")
		}
	})
}

func TestEvery(t *testing.T) {
	lc := lifecycle.New()

	var ticks atomic.Int32
	lc.Every(5*time.Millisecond, func(context.Context) { ticks.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if ticks.Load() < 2 {
		t.Errorf("ticks = %d, want at least 2", ticks.Load())
	}
}

func TestCheck(t *testing.T) {
	lc := lifecycle.New()
	lc.RegisterCheck("database", func(context.Context) error { return nil })
	lc.RegisterCheck("rules", func(context.Context) error { return errors.New("cache empty") })

	failures := lc.Check(context.Background())
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want 1 entry", failures)
	}
	if failures["rules"] != "cache empty" {
		t.Errorf("rules failure = %q", failures["rules"])
	}

	lc.RegisterCheck("rules", func(context.Context) error { return nil })
	if failures := lc.Check(context.Background()); len(failures) != 0 {
		t.Errorf("failures after replace = %v, want none", failures)
	}
}
