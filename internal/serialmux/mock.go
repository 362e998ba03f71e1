package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// MockSerialPort implements SerialPorter over an in-process pipe.
type MockSerialPort struct {
	*io.PipeReader
	io.WriteCloser
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return m.WriteCloser.Write(p)
}

// Close closes both directions; the replay goroutine stops on its next write.
func (m *MockSerialPort) Close() error {
	rerr := m.PipeReader.Close()
	werr := m.WriteCloser.Close()
	return errors.Join(rerr, werr)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewMockSerialMux creates a SerialMux that replays fixture lines in a loop,
// one every interval, as a rover would stream telemetry. Commands written to
// the mux go to commands, or are discarded when it is nil.
func NewMockSerialMux(ctx context.Context, fixture []string, interval time.Duration, commands io.WriteCloser) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	if commands == nil {
		commands = nopWriteCloser{io.Discard}
	}
	mockPort := &MockSerialPort{PipeReader: r, WriteCloser: commands}

	go func() {
		defer w.Close()
		if len(fixture) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			line := strings.TrimRight(fixture[i%len(fixture)], "\n") + "\n"
			if _, err := w.Write([]byte(line)); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return NewSerialMux(mockPort)
}

// LoadFixture reads a newline-delimited telemetry recording. Blank lines are
// skipped.
func LoadFixture(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 256*1024), maxLineBytes)
	for scan.Scan() {
		if line := strings.TrimSpace(scan.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s is empty", path)
	}
	return lines, nil
}
