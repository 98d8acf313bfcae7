package task

import (
	"sort"
	"sync"
)

// Group runs keyed tasks concurrently. A key is only ever run once; starting
// a task with a key that was already used is a no-op.
type Group struct {
	mu      sync.Mutex
	started map[string]bool
	running map[string]bool
	wg      sync.WaitGroup
}

// NewGroup creates a new task group.
func NewGroup() *Group {
	return &Group{
		started: make(map[string]bool),
		running: make(map[string]bool),
	}
}

// Go runs fn in a new goroutine. Returns false, without running fn, if a task
// with the same key was started before.
func (g *Group) Go(key string, fn func()) bool {
	g.mu.Lock()
	if g.started[key] {
		g.mu.Unlock()
		return false
	}
	g.started[key] = true
	g.running[key] = true
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		}()
		fn()
	}()
	return true
}

// Running returns the keys of the tasks that have not returned yet, in
// lexicographic order.
func (g *Group) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.running))
	for k := range g.running {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wait blocks until all started tasks have returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
