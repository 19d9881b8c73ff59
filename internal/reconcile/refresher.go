package reconcile

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/internal/logx"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/schema"
)

// AsyncSurface hands refreshes to a slow surface on its own goroutine.
// Refreshes that pile up while the surface is busy collapse into the
// newest one, and anything still pending at Close or DiscardRefreshes is
// dropped. Menu templates pass straight through so none is lost.
type AsyncSurface struct {
	next    Surface
	pending chan refreshRequest
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	epochs  map[schema.WindowID]uint64
}

type refreshRequest struct {
	ctx    context.Context
	window schema.WindowID
	epoch  uint64
	view   schema.Presentation
}

// NewAsyncSurface starts the refresh worker. Close stops it.
func NewAsyncSurface(ctx context.Context, next Surface) *AsyncSurface {
	ctx, cancel := context.WithCancel(ctx)
	s := &AsyncSurface{
		next:    next,
		pending: make(chan refreshRequest, 1),
		cancel:  cancel,
		epochs:  make(map[schema.WindowID]uint64),
	}
	s.wg.Add(1)
	go s.loop(ctx)
	return s
}

// RequestUIRefresh queues view, replacing a refresh that has not started yet.
func (s *AsyncSurface) RequestUIRefresh(ctx context.Context, window schema.WindowID, view schema.Presentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	req := refreshRequest{ctx: ctx, window: window, epoch: s.epochs[window], view: view}
	for {
		select {
		case s.pending <- req:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

// DiscardRefreshes drops every refresh for window requested so far that has
// not reached the surface yet. Later requests are delivered as usual.
func (s *AsyncSurface) DiscardRefreshes(window schema.WindowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.epochs[window]++
	select {
	case req := <-s.pending:
		if req.window != window {
			s.pending <- req
		}
	default:
	}
}

// ApplyMenuTemplate forwards tpl synchronously.
func (s *AsyncSurface) ApplyMenuTemplate(ctx context.Context, window schema.WindowID, tpl menu.Template) {
	if s.isClosed() {
		return
	}
	s.next.ApplyMenuTemplate(ctx, window, tpl)
}

// Close stops the worker and drops any refresh that has not been delivered.
func (s *AsyncSurface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *AsyncSurface) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.pending:
			closed, stale := s.check(req)
			if closed {
				return
			}
			if stale {
				continue
			}
			deliver := logx.CopyContextFields(pslog.ContextWithLogger(ctx, pslog.Ctx(req.ctx)), req.ctx)
			s.next.RequestUIRefresh(deliver, req.window, req.view)
		}
	}
}

func (s *AsyncSurface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// check reports whether the surface is closed and whether req was
// discarded after it was queued.
func (s *AsyncSurface) check(req refreshRequest) (closed, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, req.epoch != s.epochs[req.window]
}
