package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer a Producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Value is sent as-is when it is a
// string or byte slice and JSON encoded otherwise.
type Message struct {
	Key     []byte
	Value   any
	Headers []Header
}

type Header struct {
	Key   string
	Value string
}

// Producer publishes JSON records and reports per-topic metrics.
type Producer struct {
	w     Writer
	codec string
	m     *producerMetrics
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers")
	}
	cfg = cfg.withDefaults()
	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		return nil, fmt.Errorf("kafka producer: unknown compression %q", cfg.Compression)
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.KeyedPartitioning {
		balancer = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		Async:        cfg.Async,
	}
	return NewProducerWithWriter(w, cfg.Compression), nil
}

// NewProducerWithWriter publishes through w. compression only labels metrics.
func NewProducerWithWriter(w Writer, compression string) *Producer {
	return &Producer{w: w, codec: compression, m: sharedProducerMetrics()}
}

// Publish sends one keyed record.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any, headers ...Header) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value, Headers: headers}})
}

// PublishMessage sends an unkeyed record. The log collector publishes
// through it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends msgs in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now()
	records := make([]kafka.Message, len(msgs))
	size := 0
	for i, m := range msgs {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode record for %s: %w", topic, err)
		}
		size += len(v)
		records[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now, Headers: toKafkaHeaders(m.Headers)}
	}

	err := p.w.WriteMessages(ctx, records...)
	p.m.observe(topic, p.codec, len(records), size, time.Since(now), err)
	if err != nil {
		return fmt.Errorf("publish %d record(s) to %s: %w", len(records), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

func toKafkaHeaders(hs []Header) []kafka.Header {
	if len(hs) == 0 {
		return nil
	}
	out := make([]kafka.Header, len(hs))
	for i, h := range hs {
		out[i] = kafka.Header{Key: h.Key, Value: []byte(h.Value)}
	}
	return out
}

func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return json.Marshal(v)
}

type producerMetrics struct {
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	producerMetricsOnce sync.Once
	producerMetricsInst *producerMetrics
)

func sharedProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		producerMetricsInst = &producerMetrics{
			records: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aerotrend_kafka_producer_records_total",
				Help: "Records written to Kafka by topic and outcome.",
			}, []string{"topic", "compression", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aerotrend_kafka_producer_bytes_total",
				Help: "Payload bytes written to Kafka.",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "aerotrend_kafka_producer_write_seconds",
				Help:    "Duration of one write call.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerMetricsInst
}

func (m *producerMetrics) observe(topic, codec string, n, size int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.bytes.WithLabelValues(topic).Add(float64(size))
	}
	m.records.WithLabelValues(topic, codec, result).Add(float64(n))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
