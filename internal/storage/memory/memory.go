// Package memory is an in-process storage backend. A Space is one key space
// shared by several contexts, the way browser tabs share local storage: a
// write through one Context is reported to the watchers of every other one.
package memory

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/storage"
)

// Space holds the shared data
type Space struct {
	mu       sync.RWMutex
	data     map[string][]byte
	nextID   int
	watchers map[int]*watcher
}

func NewSpace() *Space {
	return &Space{
		data:     make(map[string][]byte),
		watchers: make(map[int]*watcher),
	}
}

// Context returns a new backend attached to the space
func (s *Space) Context() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &Context{space: s, id: s.nextID}
}

// Raw returns the stored bytes for key, for inspection in tests and tooling
func (s *Space) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Put writes key as if from an unknown foreign context, notifying every watcher
func (s *Space) Put(key string, value []byte) {
	s.write(0, key, value)
}

func (s *Space) write(origin int, key string, value []byte) {
	s.mu.Lock()
	if value == nil {
		delete(s.data, key)
	} else {
		s.data[key] = append([]byte(nil), value...)
	}
	targets := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		if w.origin != origin {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	for _, w := range targets {
		var v []byte
		if value != nil {
			v = append([]byte(nil), value...)
		}
		w.push(storage.Change{Key: key, Value: v})
	}
}

// Context is one participant of a Space and implements storage.Backend
type Context struct {
	space *Space
	id    int
}

func (c *Context) Get(_ context.Context, key string) ([]byte, error) {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()

	v, ok := c.space.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (c *Context) Set(_ context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	c.space.write(c.id, key, value)
	return nil
}

func (c *Context) Delete(_ context.Context, key string) error {
	c.space.write(c.id, key, nil)
	return nil
}

// Watch delivers changes on a dedicated goroutine, in write order
func (c *Context) Watch(_ context.Context, fn func(storage.Change)) (func() error, error) {
	w := newWatcher(c.id, fn)

	c.space.mu.Lock()
	c.space.nextID++
	wid := c.space.nextID
	c.space.watchers[wid] = w
	c.space.mu.Unlock()

	var once sync.Once
	stop := func() error {
		once.Do(func() {
			c.space.mu.Lock()
			delete(c.space.watchers, wid)
			c.space.mu.Unlock()
			w.close()
		})
		return nil
	}
	return stop, nil
}

// Close detaches nothing: the space outlives its contexts
func (c *Context) Close() error {
	return nil
}

// watcher queues changes without ever blocking the writer
type watcher struct {
	origin int
	fn     func(storage.Change)

	mu     sync.Mutex
	queue  []storage.Change
	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newWatcher(origin int, fn func(storage.Change)) *watcher {
	w := &watcher{
		origin: origin,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *watcher) push(c storage.Change) {
	w.mu.Lock()
	w.queue = append(w.queue, c)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}

		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, c := range batch {
			w.fn(c)
		}
	}
}

func (w *watcher) close() {
	close(w.done)
	w.wg.Wait()
}

var (
	_ storage.Backend = (*Context)(nil)
	_ storage.Watcher = (*Context)(nil)
)
