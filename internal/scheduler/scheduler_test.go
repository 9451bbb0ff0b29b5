package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/carnavalix/carnavalplay/internal/jobs"
)

func TestRunOnceClaimsSlot(t *testing.T) {
	coord := jobs.New()
	s := New(coord, 0, nil, false, nil)

	var ran atomic.Int32
	s.runOnce(context.Background(), jobs.FamilyScraper, func(ctx context.Context) error {
		ran.Add(1)
		// The slot must be held while the task runs.
		if _, err := coord.TryStart(context.Background(), jobs.FamilyScraper); !errors.Is(err, jobs.ErrAlreadyRunning) {
			t.Errorf("slot not held during run: %v", err)
		}
		return nil
	})

	if ran.Load() != 1 {
		t.Fatalf("task ran %d times, want 1", ran.Load())
	}
	// The slot must be free afterwards.
	run, err := coord.TryStart(context.Background(), jobs.FamilyScraper)
	if err != nil {
		t.Fatalf("slot not released: %v", err)
	}
	run.Done()
}

func TestRunOnceSkipsWhenBusy(t *testing.T) {
	coord := jobs.New()
	manual, err := coord.TryStart(context.Background(), jobs.FamilyOdysee)
	if err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	defer manual.Done()

	s := New(coord, 0, nil, false, nil)
	ran := false
	s.runOnce(context.Background(), jobs.FamilyOdysee, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if ran {
		t.Error("scheduled run must skip while a manual run holds the slot")
	}
}

func TestRunOnceReleasesAfterFailure(t *testing.T) {
	coord := jobs.New()
	s := New(coord, 0, nil, false, nil)

	s.runOnce(context.Background(), jobs.FamilyScraper, func(ctx context.Context) error {
		return errors.New("scrape blew up")
	})

	run, err := coord.TryStart(context.Background(), jobs.FamilyScraper)
	if err != nil {
		t.Fatalf("slot not released after failure: %v", err)
	}
	run.Done()
}
