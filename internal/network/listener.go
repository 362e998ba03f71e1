package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rover.autopilot/internal/monitoring"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
	"github.com/banshee-data/rover.autopilot/internal/timeutil"
)

var logf = monitoring.Component("network")

// MaxDatagram is the largest telemetry datagram accepted. Frames that do
// not fit in one datagram must go over HTTP instead.
const MaxDatagram = 65507

// Cycler turns one telemetry message into one command.
type Cycler interface {
	Cycle(ctx context.Context, msg []byte) (telemetry.Command, error)
}

// Stats counts listener traffic.
type Stats struct {
	Packets  int64  `json:"packets"`
	Bytes    int64  `json:"bytes"`
	Failed   int64  `json:"failed"`
	Replies  int64  `json:"replies"`
	Dropped  int64  `json:"dropped"`
	LastFrom string `json:"last_from,omitempty"`
}

// UDPListener answers every telemetry datagram with exactly one JSON
// command datagram sent back to the sender.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	cycler      Cycler
	capture     *CaptureWriter
	clock       timeutil.Clock
	open        func(string) (UDPSocket, error)

	packets  atomic.Int64
	bytes    atomic.Int64
	failed   atomic.Int64
	replies  atomic.Int64
	dropped  atomic.Int64
	lastFrom atomic.Value
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Cycler      Cycler
	// Capture, when set, receives a copy of every inbound datagram.
	Capture *CaptureWriter
	// Clock stamps captured datagrams and paces the stats log. Defaults to
	// timeutil.RealClock.
	Clock timeutil.Clock
	// Open defaults to ListenUDP.
	Open func(address string) (UDPSocket, error)
}

func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	open := cfg.Open
	if open == nil {
		open = ListenUDP
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDPListener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: logInterval,
		cycler:      cfg.Cycler,
		capture:     cfg.Capture,
		clock:       clock,
		open:        open,
	}
}

// Start opens the socket and serves until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	sock, err := l.open(l.address)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %s: %w", l.address, err)
	}
	defer sock.Close()

	if l.rcvBuf > 0 {
		if err := sock.SetReadBuffer(l.rcvBuf); err != nil {
			logf("failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	logf("telemetry listener on %s", sock.LocalAddr())

	go l.logStats(ctx)
	return l.Serve(ctx, sock)
}

// Serve reads datagrams from sock until ctx is cancelled or the socket
// fails permanently.
func (l *UDPListener) Serve(ctx context.Context, sock UDPSocket) error {
	buf := make([]byte, MaxDatagram)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sock.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logf("read error: %v", err)
			continue
		}
		l.handle(ctx, sock, buf[:n], addr)
	}
}

func (l *UDPListener) handle(ctx context.Context, sock UDPSocket, msg []byte, addr *net.UDPAddr) {
	l.packets.Add(1)
	l.bytes.Add(int64(len(msg)))
	if addr != nil {
		l.lastFrom.Store(addr.String())
	}
	if l.capture != nil {
		if err := l.capture.WritePacket(l.clock.Now(), msg); err != nil {
			logf("capture write failed: %v", err)
		}
	}

	cmd, err := l.cycler.Cycle(ctx, msg)
	if err != nil {
		l.failed.Add(1)
		logf("cycle failed for %v, replying %s: %v", addr, cmd, err)
	}
	if addr == nil {
		l.dropped.Add(1)
		return
	}
	out, err := json.Marshal(cmd)
	if err != nil {
		l.dropped.Add(1)
		logf("failed to encode command %s: %v", cmd, err)
		return
	}
	if _, err := sock.WriteToUDP(out, addr); err != nil {
		l.dropped.Add(1)
		logf("reply to %v failed: %v", addr, err)
		return
	}
	l.replies.Add(1)
}

// Stats returns a snapshot of the counters.
func (l *UDPListener) Stats() Stats {
	s := Stats{
		Packets: l.packets.Load(),
		Bytes:   l.bytes.Load(),
		Failed:  l.failed.Load(),
		Replies: l.replies.Load(),
		Dropped: l.dropped.Load(),
	}
	if from, ok := l.lastFrom.Load().(string); ok {
		s.LastFrom = from
	}
	return s
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s := l.Stats()
			logf("packets=%d bytes=%d failed=%d replies=%d dropped=%d", s.Packets, s.Bytes, s.Failed, s.Replies, s.Dropped)
		}
	}
}
