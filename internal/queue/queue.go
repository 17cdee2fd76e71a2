// Package queue carries job ids from the enqueue boundary to workers.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop after Close.
var ErrClosed = errors.New("queue: closed")

// Queue is a FIFO of job ids shared by all workers.
type Queue interface {
	Push(ctx context.Context, jobID string) error
	// Pop blocks until an id is available or ctx is done.
	Pop(ctx context.Context) (string, error)
}

// Memory is an unbounded in-process queue.
type Memory struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
	done   chan struct{}
	closed bool
}

// NewMemory returns an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{signal: make(chan struct{}, 1), done: make(chan struct{})}
}

func (m *Memory) Push(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.items = append(m.items, jobID)
	m.mu.Unlock()
	m.wake()
	return nil
}

func (m *Memory) Pop(ctx context.Context) (string, error) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			id := m.items[0]
			m.items = m.items[1:]
			more := len(m.items) > 0
			m.mu.Unlock()
			if more {
				m.wake()
			}
			return id, nil
		}
		if m.closed {
			m.mu.Unlock()
			return "", ErrClosed
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-m.signal:
		case <-m.done:
		}
	}
}

// Len reports the number of queued ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close wakes every blocked consumer; queued ids are still drained first.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *Memory) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

var _ Queue = (*Memory)(nil)
