package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"AeroTrend/pkg/logger"
)

// MessageHandler consumes the records of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ErrPermanent marks failures a retry cannot fix, such as undecodable
// payloads. Handlers wrap it to go straight to the dead-letter topic.
var ErrPermanent = errors.New("kafka: permanent failure")

const commitAttempts = 3

type record struct {
	topic string
	km    kafka.Message
}

// groupReader is the part of *kafka.Reader the consumer uses.
type groupReader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// partitionState is owned by the single lane its partition hashes to.
type partitionState struct {
	// heldAt is the first offset that neither succeeded nor reached the
	// dead-letter topic; -1 while commits flow.
	heldAt int64
}

// Consumer reads every registered topic in one consumer group and hands
// records to a fixed set of worker lanes. A topic/partition always maps to
// the same lane, so its records are handled one at a time in offset order
// and per-key order holds when producers key by session id. Offsets are
// committed in order up to the first record that failed without reaching
// the dead-letter topic; later offsets of that partition stay uncommitted
// until the group restarts from the failed one.
type Consumer struct {
	cfg       ConsumerConfig
	log       *logger.Logger
	hooks     hookChain
	handlers  map[string]MessageHandler
	readers   map[string]groupReader
	newReader func(topic string) groupReader
	dlq       Writer
	m         *consumerMetrics

	lanes    []chan record
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	partitions sync.Map // topic/partition -> *partitionState
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers")
	}
	cfg = cfg.withDefaults()
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		hooks:    hookChain(cfg.Hooks),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]groupReader),
		m:        sharedConsumerMetrics(),
		lanes:    make([]chan record, cfg.Workers),
		stop:     make(chan struct{}),
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan record, cfg.QueueSize)
	}
	c.newReader = c.dialReader
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start. The first handler for a
// topic wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn("duplicate kafka handler ignored", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}

	c.wg.Add(len(c.lanes))
	for _, lane := range c.lanes {
		go c.work(lane)
	}

	var fetchers sync.WaitGroup
	for topic, r := range c.readers {
		fetchers.Add(1)
		c.wg.Add(1)
		go func(topic string, r groupReader) {
			defer c.wg.Done()
			defer fetchers.Done()
			c.fetch(topic, r)
		}(topic, r)
	}
	go func() {
		fetchers.Wait()
		c.closeLanes()
	}()

	c.log.Info("kafka consumer running",
		logger.String("group_id", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.Workers),
	)
	return nil
}

// Stop halts fetching, lets workers finish the record in hand and closes
// the readers. It returns early with an error if ctx expires first.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if len(c.readers) == 0 {
			c.closeLanes()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("close dead-letter writer", logger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) dialReader(topic string) groupReader {
	start := kafka.FirstOffset
	if c.cfg.FromLatest {
		start = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		Topic:       topic,
		MinBytes:    c.cfg.MinBytes,
		MaxBytes:    c.cfg.MaxBytes,
		StartOffset: start,
	})
}

func (c *Consumer) closeLanes() {
	for _, lane := range c.lanes {
		close(lane)
	}
}

// laneFor maps a topic/partition onto a fixed lane.
func (c *Consumer) laneFor(topic string, partition int) chan record {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return c.lanes[(h.Sum32()+uint32(partition))%uint32(len(c.lanes))]
}

func (c *Consumer) queued() int {
	n := 0
	for _, lane := range c.lanes {
		n += len(lane)
	}
	return n
}

func (c *Consumer) fetch(topic string, r groupReader) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			if !c.sleep(c.cfg.BackoffMin) {
				return
			}
			continue
		}
		select {
		case c.laneFor(topic, km.Partition) <- record{topic: topic, km: km}:
			c.m.queued.WithLabelValues(topic).Set(float64(c.queued()))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work(lane <-chan record) {
	defer c.wg.Done()
	for rec := range lane {
		h, ok := c.handlers[rec.topic]
		if !ok {
			continue
		}
		c.settle(rec, c.process(h, rec))
	}
}

// settle commits rec unless an earlier offset of its partition is held.
func (c *Consumer) settle(rec record, done bool) {
	st := c.partition(rec.topic, rec.km.Partition)
	if st.heldAt >= 0 {
		return
	}
	if !done {
		st.heldAt = rec.km.Offset
		c.log.Warn("kafka partition commits held",
			logger.String("topic", rec.topic),
			logger.Int("partition", rec.km.Partition),
			logger.Int64("offset", rec.km.Offset),
		)
		return
	}
	if r := c.readers[rec.topic]; r != nil {
		c.commit(r, rec.km)
	}
}

// process reports whether the record's offset may be committed.
func (c *Consumer) process(h MessageHandler, rec record) (commit bool) {
	started := time.Now()
	defer func() {
		c.m.handleTime.WithLabelValues(rec.topic).Observe(time.Since(started).Seconds())
	}()
	defer func() {
		if p := recover(); p != nil {
			c.m.results.WithLabelValues(rec.topic, "panic").Inc()
			c.log.Error("kafka handler panicked", logger.String("topic", rec.topic), logger.Any("panic", p))
			commit = c.deadLetter(rec, fmt.Errorf("panic: %v", p))
		}
	}()

	var err error
	attempt := 0
	for {
		attempt++
		err = c.attempt(h, rec)
		if err == nil || errors.Is(err, ErrPermanent) || attempt > c.cfg.RetryMax {
			break
		}
		if !c.sleep(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return false
		}
	}

	if err == nil {
		c.m.results.WithLabelValues(rec.topic, "ok").Inc()
		return true
	}
	c.m.results.WithLabelValues(rec.topic, "failed").Inc()
	c.log.Error("kafka record failed",
		logger.String("topic", rec.topic),
		logger.Int("partition", rec.km.Partition),
		logger.Int64("offset", rec.km.Offset),
		logger.Int("attempts", attempt),
		logger.Error(err),
	)
	return c.deadLetter(rec, err)
}

func (c *Consumer) attempt(h MessageHandler, rec record) error {
	ctx, err := c.hooks.before(context.Background(), rec.km)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, rec.km.Value)
	c.hooks.after(ctx, rec.km, err)
	return err
}

func (c *Consumer) deadLetter(rec record, cause error) bool {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   rec.km.Key,
		Value: rec.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(rec.topic)},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(rec.km.Offset, 10))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("dead-letter write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	c.m.results.WithLabelValues(rec.topic, "dead_lettered").Inc()
	return true
}

func (c *Consumer) commit(r groupReader, km kafka.Message) {
	var err error
	for i := 1; i <= commitAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		if !c.sleep(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, i)) {
			break
		}
	}
	c.log.Error("kafka commit failed",
		logger.String("topic", km.Topic),
		logger.Int64("offset", km.Offset),
		logger.Error(err),
	)
}

func (c *Consumer) partition(topic string, partition int) *partitionState {
	key := topic + "/" + strconv.Itoa(partition)
	st, _ := c.partitions.LoadOrStore(key, &partitionState{heldAt: -1})
	return st.(*partitionState)
}

// sleep waits d and reports false if the consumer stopped meanwhile.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stop:
		return false
	}
}

// backoff doubles from lo per attempt up to hi and subtracts up to half
// of the result as jitter.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	d := hi
	if attempt < 32 {
		if exp := lo << uint(attempt-1); exp > 0 && exp < hi {
			d = exp
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

type consumerMetrics struct {
	queued     *prometheus.GaugeVec
	handleTime *prometheus.HistogramVec
	results    *prometheus.CounterVec
}

var (
	consumerMetricsOnce sync.Once
	consumerMetricsInst *consumerMetrics
)

func sharedConsumerMetrics() *consumerMetrics {
	consumerMetricsOnce.Do(func() {
		consumerMetricsInst = &consumerMetrics{
			queued: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "aerotrend_kafka_consumer_queued_records",
				Help: "Records fetched and waiting for a worker.",
			}, []string{"topic"}),
			handleTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "aerotrend_kafka_consumer_handle_seconds",
				Help:    "Time to process one record, retries included.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			results: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aerotrend_kafka_consumer_records_total",
				Help: "Processed records by outcome.",
			}, []string{"topic", "result"}),
		}
	})
	return consumerMetricsInst
}
