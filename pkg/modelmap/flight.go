package modelmap

import "sync"

// flightCall is one in-progress lookup that later callers can attach to.
type flightCall struct {
	wg  sync.WaitGroup
	res Resolution
	err error
}

// flightGroup collapses concurrent lookups for the same key: the first caller
// runs the function, subsequent callers block on its result. Entries are
// removed as soon as the call settles, so a key can be looked up again after
// completion (the TTL cache, not the group, is the memoization layer).
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

// do executes fn for key, deduplicating concurrent calls. The second return
// value reports whether this caller attached to an existing call.
func (g *flightGroup) do(key string, fn func() (Resolution, error)) (Resolution, bool, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.res, true, c.err
	}
	c := &flightCall{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.res, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	c.wg.Done()

	return c.res, false, c.err
}
