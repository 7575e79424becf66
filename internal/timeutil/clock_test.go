package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_SleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Sleep(time.Second)
	clock.Sleep(250 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 250*time.Millisecond {
		t.Fatalf("Sleeps() = %v", sleeps)
	}
	if got := clock.Since(start); got != 1250*time.Millisecond {
		t.Fatalf("Since(start) = %v, want 1.25s", got)
	}
}

func TestMockClock_AdvanceFiresTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	tk := clock.NewTicker(5 * time.Millisecond)

	clock.Advance(4 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired before its interval")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire at its interval")
	}

	tk.Stop()
	clock.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTicker_TriggerDoesNotBlock(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	tk := clock.NewTicker(time.Millisecond).(*MockTicker)

	tk.Trigger(time.Unix(1, 0))
	tk.Trigger(time.Unix(2, 0)) // dropped, channel already holds a tick

	got := <-tk.C()
	if !got.Equal(time.Unix(1, 0)) {
		t.Fatalf("got tick %v, want first trigger", got)
	}
	if len(clock.Tickers()) != 1 || tk.Interval() != time.Millisecond {
		t.Fatalf("unexpected ticker bookkeeping")
	}
}
