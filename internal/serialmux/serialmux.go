// Package serialmux multiplexes a serial telemetry link: many readers can
// subscribe to the lines the rover sends, and commands are written back to
// the single port one line at a time.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer absorbs short stalls in a reader before lines are dropped.
const subscriberBuffer = 8

// SerialPorter is what the mux needs from a port. go.bug.st/serial ports
// satisfy it, as do the in-memory ports used in dev mode and tests.
type SerialPorter interface {
	io.ReadWriteCloser
}

// SerialMuxInterface is implemented by the real, mock and disabled links.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel receiving every line read from
	// the port. The channel is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one line to the port, adding the newline.
	SendCommand(string) error
	// Monitor reads the port until ctx is done, the port reaches EOF or a
	// read fails.
	Monitor(context.Context) error
	Close() error
	// Initialize sends the null drive command the rover expects on connect.
	Initialize() error
	Stats() LinkStats
	// AttachAdminRoutes mounts the link's debug pages under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// LinkStats counts traffic over the link since it was opened.
type LinkStats struct {
	LinesIn     int64     `json:"lines_in"`
	BytesIn     int64     `json:"bytes_in"`
	Dropped     int64     `json:"dropped"`
	CommandsOut int64     `json:"commands_out"`
	Subscribers int       `json:"subscribers"`
	LastLine    time.Time `json:"last_line,omitempty"`
}

// SerialMux fans the lines of one port out to any number of subscribers.
type SerialMux[T SerialPorter] struct {
	port T

	mu   sync.Mutex
	subs map[string]chan string

	writeMu sync.Mutex
	closing atomic.Bool

	linesIn     atomic.Int64
	bytesIn     atomic.Int64
	dropped     atomic.Int64
	commandsOut atomic.Int64
	lastLine    atomic.Int64
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: make(map[string]chan string)}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *SerialMux[T]) Initialize() error {
	if err := sendCommand(s, telemetry.Zero()); err != nil {
		return fmt.Errorf("failed to send initial command: %w", err)
	}
	return nil
}

func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	s.commandsOut.Add(1)
	return nil
}

func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	// Scan blocks in the port read, so it runs apart from the ctx select.
	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		// Camera frames arrive inline as base64, far beyond the default token size.
		scan.Buffer(make([]byte, 0, 256*1024), maxLineBytes)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if s.closing.Load() {
				return nil
			}
			s.broadcast(line)
		}
	}
}

// broadcast hands line to every subscriber with room for it; full
// subscribers miss the line rather than stall the port.
func (s *SerialMux[T]) broadcast(line string) {
	s.linesIn.Add(1)
	s.bytesIn.Add(int64(len(line)) + 1)
	s.lastLine.Store(time.Now().UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *SerialMux[T]) Stats() LinkStats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	st := LinkStats{
		LinesIn:     s.linesIn.Load(),
		BytesIn:     s.bytesIn.Load(),
		Dropped:     s.dropped.Load(),
		CommandsOut: s.commandsOut.Load(),
		Subscribers: n,
	}
	if ns := s.lastLine.Load(); ns != 0 {
		st.LastLine = time.Unix(0, ns)
	}
	return st
}

func (s *SerialMux[T]) Close() error {
	s.closing.Store(true)
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// sendCommand encodes cmd and writes it as one line.
func sendCommand(mux SerialMuxInterface, cmd telemetry.Command) error {
	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	return mux.SendCommand(string(line))
}
