package realtime

import (
	"errors"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport for failure injection and frame
// inspection. sever() makes every subsequent write fail, simulating a dead
// socket.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closes   int

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (t *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.done:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) WriteFrame(data []byte, _ time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.frames = append(t.frames, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) sever() {
	t.mu.Lock()
	t.writeErr = errors.New("broken pipe")
	t.mu.Unlock()
}

func (t *fakeTransport) writtenFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// clientSend simulates an inbound frame from the client.
func (t *fakeTransport) clientSend(data []byte) {
	t.inbound <- data
}
