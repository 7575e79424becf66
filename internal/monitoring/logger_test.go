package monitoring

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Now set to nil and verify it doesn't call our logger
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestComponent_PrefixesLines(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got []string
	logf := Component("camera")

	// swap after creation: the component logger must follow the swap
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	logf("read failed: %d", 3)

	if len(got) != 1 || got[0] != "[camera] read failed: 3" {
		t.Fatalf("unexpected log lines: %q", got)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if got := c.Load(); got != 800 {
		t.Fatalf("Load() = %d, want 800", got)
	}
	c.Reset()
	if got := c.Load(); got != 0 {
		t.Fatalf("Load() after Reset = %d, want 0", got)
	}
}

func TestCounter_Add(t *testing.T) {
	var c Counter
	c.Inc()
	if got := c.Add(4); got != 5 {
		t.Fatalf("Add(4) = %d, want 5", got)
	}
}
