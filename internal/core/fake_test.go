package core

import (
	"fmt"
	"sync"

	"github.com/dkeye/termrelay/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

func (f *fakeSignal) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func sequentialIDs() func() domain.ConnID {
	n := 0
	return func() domain.ConnID {
		n++
		return domain.ConnID(fmt.Sprintf("c%d", n))
	}
}
