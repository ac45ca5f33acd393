package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

const DefaultIdleTTL = 30 * time.Minute

// ErrEvicted is returned by Get when the identifier was evicted while its agent was being built.
var ErrEvicted = errors.New("agent evicted during build")

type cacheEntry struct {
	agent    Agent
	lastUsed time.Time
}

// Cache keeps built agents per identifier and model until they sit idle.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	gens    map[string]uint64
	group   singleflight.Group
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func cacheKey(identifier, model string) string {
	return identifier + ":" + model
}

// Get returns the cached agent or builds one. Concurrent misses for the
// same key share a single build.
func (c *Cache) Get(ctx context.Context, identifier, model string, build func(context.Context) (Agent, error)) (Agent, error) {
	key := cacheKey(identifier, model)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.lastUsed = c.now()
		c.mu.Unlock()
		return e.agent, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return e.agent, nil
		}
		gen := c.gens[identifier]
		c.mu.Unlock()

		a, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[identifier] != gen {
			// Evicted while building; the agent may hold stale credentials.
			c.mu.Unlock()
			closeAll([]Agent{a})
			return nil, ErrEvicted
		}
		c.entries[key] = &cacheEntry{agent: a, lastUsed: c.now()}
		c.mu.Unlock()
		log.Debugf("[Agent] built agent %s", key)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Agent), nil
}

// Evict closes and drops every model's agent for the identifier. Builds
// already in flight for it are discarded when they finish.
func (c *Cache) Evict(identifier string) {
	prefix := identifier + ":"
	var closing []Agent
	c.mu.Lock()
	c.gens[identifier]++
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			closing = append(closing, e.agent)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	closeAll(closing)
}

// Sweep drops agents idle for longer than the TTL and returns how many went.
func (c *Cache) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	var closing []Agent
	c.mu.Lock()
	for key, e := range c.entries {
		if e.lastUsed.Before(cutoff) {
			closing = append(closing, e.agent)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	closeAll(closing)
	return len(closing)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartJanitor sweeps on the given interval until Close.
func (c *Cache) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Infof("[Agent] evicted %d idle agents", n)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the janitor and closes all cached agents.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
	var closing []Agent
	c.mu.Lock()
	for key, e := range c.entries {
		closing = append(closing, e.agent)
		delete(c.entries, key)
	}
	c.mu.Unlock()
	closeAll(closing)
}

func closeAll(agents []Agent) {
	for _, a := range agents {
		if err := a.Close(); err != nil {
			log.Warnf("[Agent] close agent: %v", err)
		}
	}
}
