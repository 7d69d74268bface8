package engine

import (
	"sync"
	"time"
)

// hostEntry stores the preferred renderer for a host with a TTL.
type hostEntry struct {
	engineName string
	expiresAt  time.Time
}

// HostMemory remembers which renderer worked for each publisher host, so
// the remaining years of a run skip renderers that already lost.
// Entries expire after the configured TTL; a background janitor sweeps
// expired entries until Stop is called.
type HostMemory struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewHostMemory creates a HostMemory with the given TTL.
func NewHostMemory(ttl time.Duration) *HostMemory {
	m := &HostMemory{ttl: ttl, stop: make(chan struct{})}
	go m.janitor()
	return m
}

// Get returns the remembered renderer for a host, or "" if not found / expired.
func (m *HostMemory) Get(host string) string {
	val, ok := m.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*hostEntry)
	if time.Now().After(entry.expiresAt) {
		m.store.Delete(host)
		return ""
	}
	return entry.engineName
}

// Set records which renderer succeeded for a host.
func (m *HostMemory) Set(host, engineName string) {
	m.store.Store(host, &hostEntry{
		engineName: engineName,
		expiresAt:  time.Now().Add(m.ttl),
	})
}

// Delete forgets a host (e.g. after the remembered renderer fails).
func (m *HostMemory) Delete(host string) {
	m.store.Delete(host)
}

// Stop ends the janitor goroutine.
func (m *HostMemory) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func (m *HostMemory) janitor() {
	interval := m.ttl
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.store.Range(func(key, val any) bool {
				if now.After(val.(*hostEntry).expiresAt) {
					m.store.Delete(key)
				}
				return true
			})
		}
	}
}
