package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		sm := NewShutdownManager(nil, nil, 0)
		if sm.shutdownTimeout != 30*time.Second {
			t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
		}
		if sm.logger == nil {
			t.Error("Expected a logger to be installed when nil is passed")
		}
	})

	t.Run("nil functions ignored", func(t *testing.T) {
		sm := NewShutdownManager(nil, nil, time.Second)
		sm.RegisterShutdownFunc(nil)
		if len(sm.shutdownFuncs) != 0 {
			t.Errorf("Expected nil function to be ignored, got %d funcs", len(sm.shutdownFuncs))
		}
	})
}

func TestShutdownFunctionsExecution(t *testing.T) {
	tests := []struct {
		name           string
		funcs          []ShutdownFunc
		expectedErrors string
	}{
		{
			name: "successful shutdown functions",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return nil },
			},
		},
		{
			name: "one failing function",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("close db") },
				func(ctx context.Context) error { return nil },
			},
			expectedErrors: "shutdown completed with 1 errors",
		},
		{
			name: "every function failing",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("error 1") },
				func(ctx context.Context) error { return errors.New("error 2") },
			},
			expectedErrors: "shutdown completed with 2 errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewShutdownManager(NopLogger(), nil, 5*time.Second)
			for _, fn := range tt.funcs {
				sm.RegisterShutdownFunc(fn)
			}

			err := sm.Shutdown()

			if tt.expectedErrors == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if !strings.HasPrefix(err.Error(), tt.expectedErrors) {
				t.Errorf("Expected error prefix %q, got %q", tt.expectedErrors, err.Error())
			}
		})
	}
}

func TestShutdownWithHTTPServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	var ran int32
	sm := NewShutdownManager(NopLogger(), ts.Config, 5*time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Expected shutdown function to run after server shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, 50*time.Millisecond)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := sm.Shutdown()
	if err == nil || err.Error() != "shutdown timeout reached" {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	var ran int32
	sm := NewShutdownManager(NopLogger(), nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sm.WaitForShutdown(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return after context cancellation")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Expected shutdown function to run")
	}
}
