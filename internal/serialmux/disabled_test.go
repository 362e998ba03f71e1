package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := d.SendCommand(`{"type":"pickup"}`); err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
	}
	if got := d.Stats().Dropped; got != 3 {
		t.Errorf("Stats().Dropped = %d, want 3", got)
	}

	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Unsubscribe")
	}

	_, ch = d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Close")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Subscribing after Close yields an already-closed channel.
	_, ch = d.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Close")
	}
}

func TestDisabledSerialMux_MonitorBlocksUntilCancelled(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := d.Monitor(ctx); err != context.DeadlineExceeded {
		t.Errorf("Monitor() = %v, want DeadlineExceeded", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	mux := http.NewServeMux()
	NewDisabledSerialMux().AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "serial disabled" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}
