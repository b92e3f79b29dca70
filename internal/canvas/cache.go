package canvas

import (
	"slices"
	"sync"

	"github.com/ayusman/airboard/internal/stroke"
)

// Cache keeps the most recent render of the committed strokes so that
// several viewers of the same history version share one render.
type Cache struct {
	p *Projector

	mu      sync.Mutex
	version uint64
	surface *Surface
	closed  bool
}

// NewCache creates an empty Cache for p.
func NewCache(p *Projector) *Cache {
	return &Cache{p: p}
}

// Projector returns the projector the cache renders with.
func (c *Cache) Projector() *Projector { return c.p }

// View returns a new surface showing committed, rendered for history
// version, with the optional in-progress stroke drawn on top. The caller
// owns the returned surface.
func (c *Cache) View(version uint64, committed []stroke.Stroke, pending *stroke.Stroke) *Surface {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		out := c.p.Render(slices.Values(committed))
		if pending != nil {
			c.p.Draw(out, *pending)
		}
		return out
	}
	if c.surface == nil || c.version != version {
		if c.surface != nil {
			c.surface.Close()
		}
		c.surface = c.p.Render(slices.Values(committed))
		c.version = version
	}
	out := c.surface.Clone()
	c.mu.Unlock()

	if pending != nil {
		c.p.Draw(out, *pending)
	}
	return out
}

// Close releases the cached render.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.surface != nil {
		c.surface.Close()
		c.surface = nil
	}
}
