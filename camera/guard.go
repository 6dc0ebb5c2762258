package camera

import (
	"context"
	"sync"

	"github.com/xiaoyuanzhu-com/omnitool/log"
)

var logger = log.GetLogger("Camera")

// Guard makes sure no more than one camera handle is ever open. A new
// acquisition waits until the previous handle's release is confirmed.
type Guard struct {
	acquireMu sync.Mutex

	mu   sync.Mutex
	cur  *tracked
	open int
	peak int
}

type tracked struct {
	h    Handle
	once sync.Once
}

func NewGuard() *Guard {
	return &Guard{}
}

// Acquire releases any handle still open, waits for its confirmation, then
// starts dev.
func (g *Guard) Acquire(ctx context.Context, dev Device, s Settings) (Handle, error) {
	g.acquireMu.Lock()
	defer g.acquireMu.Unlock()

	if prev := g.current(); prev != nil {
		logger.Debug().Str("device", dev.ID()).Msg("releasing previous handle before acquire")
		if err := g.release(ctx, prev); err != nil {
			return nil, err
		}
	}

	h, err := dev.Acquire(ctx, s)
	if err != nil {
		return nil, err
	}

	t := &tracked{h: h}
	g.mu.Lock()
	g.cur = t
	g.open++
	if g.open > g.peak {
		g.peak = g.open
	}
	g.mu.Unlock()

	go func() {
		<-h.Done()
		g.confirmed(t)
	}()

	return h, nil
}

func (g *Guard) current() *tracked {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

func (g *Guard) release(ctx context.Context, t *tracked) error {
	if err := t.h.Release(ctx); err != nil {
		return err
	}
	select {
	case <-t.h.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	g.confirmed(t)
	return nil
}

func (g *Guard) confirmed(t *tracked) {
	t.once.Do(func() {
		g.mu.Lock()
		g.open--
		if g.cur == t {
			g.cur = nil
		}
		g.mu.Unlock()
	})
}

// ReleaseAll releases the open handle, if any, and waits for confirmation.
func (g *Guard) ReleaseAll(ctx context.Context) error {
	g.acquireMu.Lock()
	defer g.acquireMu.Unlock()
	if t := g.current(); t != nil {
		return g.release(ctx, t)
	}
	return nil
}

// Open returns the number of handles whose release is not yet confirmed.
func (g *Guard) Open() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Peak returns the highest number of simultaneously open handles seen.
func (g *Guard) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
