package service

import "sync"

// inflightGuard tracks opportunities currently being priced so overlapping
// ticks never process the same one twice.
type inflightGuard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{ids: make(map[string]struct{})}
}

// tryAcquire marks an opportunity in flight. Returns false if it already is.
func (g *inflightGuard) tryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ids[id]; ok {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

// release clears the in-flight mark. Safe to call for an unmarked id.
func (g *inflightGuard) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ids, id)
}
