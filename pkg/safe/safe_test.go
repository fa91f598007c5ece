package safe

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewPanicError(t *testing.T) {
	stack := []byte("goroutine 1 [running]:\nmain.main()")
	err := NewPanicError("boom", stack)

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatal("returned error is not *PanicError")
	}
	if panicErr.info != "boom" {
		t.Errorf("info = %v, want %q", panicErr.info, "boom")
	}
	if string(panicErr.stack) != string(stack) {
		t.Errorf("stack = %s, want %s", panicErr.stack, stack)
	}
	if panicErr.time.IsZero() {
		t.Error("timestamp is zero")
	}
}

func TestPanicError_Error(t *testing.T) {
	tests := []struct {
		name      string
		panicInfo any
		want      string
	}{
		{"string panic", "handler dispatch failed", "handler dispatch failed"},
		{"error panic", errors.New("nil dereference"), "nil dereference"},
		{"struct panic", struct{ Code int }{Code: 500}, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPanicError(tt.panicInfo, []byte("stack"))
			msg := err.Error()
			for _, part := range []string{"panic:", "timestamp:", "error:", "stack:", tt.want} {
				if !strings.Contains(msg, part) {
					t.Errorf("message %q missing %q", msg, part)
				}
			}
		})
	}
}

func TestPanicError_ErrorIsCached(t *testing.T) {
	err := NewPanicError("boom", []byte("stack"))
	var panicErr *PanicError
	errors.As(err, &panicErr)

	first := panicErr.Error()
	second := panicErr.Error()
	if first != second {
		t.Errorf("cached message changed between calls: %q vs %q", first, second)
	}
}

func TestWithRecover_NilFunction(t *testing.T) {
	if WithRecover(nil) != nil {
		t.Error("WithRecover(nil) should return nil")
	}
}

func TestWithRecover_NormalExecution(t *testing.T) {
	executed := false
	wrapped := WithRecover(func() { executed = true })
	wrapped()
	if !executed {
		t.Error("wrapped function was not executed")
	}
}

// TestWithRecover_BridgeDispatchPanic mirrors how internal/bridge wraps an
// MCP request handler: a panicking handler must not crash the dispatcher,
// and the recovered error must be routed to the caller's error channel.
func TestWithRecover_BridgeDispatchPanic(t *testing.T) {
	var mu sync.Mutex
	var dispatchErr error

	handleQuery := func(payload string) {
		if payload == "" {
			panic("empty query payload")
		}
	}

	wrapped := WithRecover(func() {
		handleQuery("")
	}, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		dispatchErr = err
	})
	wrapped()

	mu.Lock()
	defer mu.Unlock()
	if dispatchErr == nil {
		t.Fatal("panic was not recovered into an error")
	}
	if !strings.Contains(dispatchErr.Error(), "empty query payload") {
		t.Errorf("unexpected error: %v", dispatchErr)
	}
}

func TestWithRecover_MultipleHandlersAllCalled(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handler := func(error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}

	wrapped := WithRecover(func() { panic("test") }, handler, handler, handler)
	wrapped()

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRecover_NoHandlersSwallowsPanic(t *testing.T) {
	wrapped := WithRecover(func() { panic("unhandled") })
	wrapped() // must not propagate
}

func TestWithRecover_ConcurrentPanics(t *testing.T) {
	const n = 50
	errCh := make(chan error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrapped := WithRecover(func() { panic(i) }, func(err error) { errCh <- err })
			wrapped()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for goroutines")
	}
	close(errCh)

	count := 0
	for range errCh {
		count++
	}
	if count != n {
		t.Errorf("received %d errors, want %d", count, n)
	}
}
