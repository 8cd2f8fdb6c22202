package missiontransfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubWorkItem is a minimal WorkItem for exercising workQueue and Engine
// without going through a concrete mission sub-protocol.
type stubWorkItem struct {
	name      string
	started   bool
	done      bool
	cancelErr error
	starts    int
	cancels   int
}

func (s *stubWorkItem) Start()       { s.started = true; s.starts++ }
func (s *stubWorkItem) Cancel() error { s.cancels++; s.done = true; return s.cancelErr }
func (s *stubWorkItem) HasStarted() bool { return s.started }
func (s *stubWorkItem) IsDone() bool     { return s.done }

func TestWorkQueue_FIFOOrder(t *testing.T) {
	q := newWorkQueue()
	a := &stubWorkItem{name: "a"}
	b := &stubWorkItem{name: "b"}
	q.Enqueue(a)
	q.Enqueue(b)

	head, ok := q.Head()
	require.True(t, ok)
	require.Same(t, a, head)

	q.DropHead()
	head, ok = q.Head()
	require.True(t, ok)
	require.Same(t, b, head)

	q.DropHead()
	_, ok = q.Head()
	require.False(t, ok)
}

func TestWorkQueue_Drain(t *testing.T) {
	q := newWorkQueue()
	a := &stubWorkItem{name: "a"}
	b := &stubWorkItem{name: "b"}
	q.Enqueue(a)
	q.Enqueue(b)

	drained := q.Drain()
	require.Equal(t, []WorkItem{a, b}, drained)
	require.Equal(t, 0, q.Len())
}

func TestWorkQueue_EmptyHead(t *testing.T) {
	q := newWorkQueue()
	_, ok := q.Head()
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

var errBoom = errors.New("boom")
