package serialmux

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// DisabledSerialMux stands in for the link under --disable-serial, when
// telemetry arrives only over HTTP or UDP. It never yields a line; commands
// written to it are counted and discarded.
type DisabledSerialMux struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool

	discarded atomic.Int64
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: make(map[string]chan string)}
}

// Subscribe returns a channel that stays silent until Unsubscribe or Close,
// so readers unblock on shutdown.
func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *DisabledSerialMux) SendCommand(string) error {
	if d.discarded.Add(1) == 1 {
		logf("serial link disabled, discarding commands")
	}
	return nil
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	return nil
}

// Initialize has no rover to reset.
func (d *DisabledSerialMux) Initialize() error { return nil }

// Stats reports discarded commands as Dropped.
func (d *DisabledSerialMux) Stats() LinkStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return LinkStats{Dropped: d.discarded.Load(), Subscribers: len(d.subs)}
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled"))
	})
}
