package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships digests; the Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectorConfig struct {
	// Interval between flushes. Defaults to 30s.
	Interval time.Duration
	// MaxDistinct forces a flush once this many distinct entries are held.
	MaxDistinct int
	Topic       string
	Publisher   Publisher
	// PublishTimeout bounds one publish call. Defaults to 10s.
	PublishTimeout time.Duration
}

// DigestEntry counts identical log entries between two flushes.
type DigestEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// Collector deduplicates warnings and errors and publishes them in batches.
// Periodic publishes run in the background; the final one in Close is
// synchronous.
type Collector struct {
	cfg CollectorConfig

	mu      sync.Mutex
	entries map[uint64]*DigestEntry

	inflight sync.WaitGroup
	stop     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	c := &Collector{
		cfg:     cfg,
		entries: make(map[uint64]*DigestEntry),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Collector) Add(level, msg string, fields map[string]any, caller string) {
	now := time.Now()
	id := digestKey(level, msg, caller, fields)

	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[id] = &DigestEntry{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	var batch []DigestEntry
	if c.cfg.MaxDistinct > 0 && len(c.entries) >= c.cfg.MaxDistinct {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.publishAsync(batch)
	}
}

// Pending is the number of distinct entries held for the next flush.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close flushes what is held and waits for in-flight publishes.
func (c *Collector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.stopped
		c.mu.Lock()
		batch := c.drainLocked()
		c.mu.Unlock()
		if batch != nil {
			c.publish(batch)
		}
		c.inflight.Wait()
	})
}

func (c *Collector) loop() {
	defer close(c.stopped)
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.mu.Lock()
			batch := c.drainLocked()
			c.mu.Unlock()
			if batch != nil {
				c.publishAsync(batch)
			}
		}
	}
}

func (c *Collector) drainLocked() []DigestEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := make([]DigestEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*DigestEntry)
	return batch
}

func (c *Collector) publishAsync(batch []DigestEntry) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.publish(batch)
	}()
}

func (c *Collector) publish(batch []DigestEntry) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		// The logger itself may be what routes here; stderr avoids a loop.
		fmt.Fprintf(os.Stderr, "aerotrend: publish log digest to %s: %v\n", c.cfg.Topic, err)
	}
}

func digestKey(level, msg, caller string, fields map[string]any) uint64 {
	h := fnv.New64a()
	for _, s := range []string{level, msg, caller} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\x00", k, fields[k])
	}
	return h.Sum64()
}
