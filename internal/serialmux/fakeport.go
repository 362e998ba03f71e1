package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// FakePort is an in-memory SerialPorter for tests. Reads drain what Feed
// queued and then report io.EOF, unless BlockReads is set, in which case a
// read waits for more input or Close.
type FakePort struct {
	// ReadError and WriteError fail the next call once.
	ReadError  error
	WriteError error
	BlockReads bool

	mu     sync.Mutex
	more   *sync.Cond
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func NewFakePort() *FakePort {
	p := &FakePort{}
	p.more = sync.NewCond(&p.mu)
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.closed && p.in.Len() == 0 {
		p.more.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return 0, errPortClosed
	case p.WriteError != nil:
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.more.Broadcast()
	return nil
}

// Feed queues data as if the rover had sent it.
func (p *FakePort) Feed(data []byte) {
	p.mu.Lock()
	p.in.Write(data)
	p.mu.Unlock()
	p.more.Broadcast()
}

// Written returns a copy of everything written so far.
func (p *FakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

func (p *FakePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
