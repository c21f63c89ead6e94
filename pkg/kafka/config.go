package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"

	"AeroTrend/pkg/logger"
)

// ProducerConfig configures a Producer. Zero fields take the defaults below.
type ProducerConfig struct {
	Brokers []string
	// RequiredAcks follows the Kafka convention: -1 all replicas, 1 leader, 0 none.
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	Async        bool
	// KeyedPartitioning hashes record keys so one session stays on one
	// partition. Otherwise records go to the least loaded partition.
	KeyedPartitioning bool
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.Compression == "" {
		c.Compression = "snappy"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1 << 20
	}
	if c.Linger <= 0 {
		c.Linger = 50 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	return c
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// FromLatest makes a new group start at the end of the topic.
	FromLatest bool
	// Workers is the number of lanes; each partition sticks to one lane.
	Workers int
	// QueueSize bounds each lane.
	QueueSize int
	// RetryMax is the number of retries after the first attempt.
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// DLQTopic receives records that still fail after retries. Empty
	// leaves failed records uncommitted.
	DLQTopic string
	MinBytes int
	MaxBytes int
	Logger   *logger.Logger
	Hooks    []Hook
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.GroupID == "" {
		c.GroupID = "aerotrend"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 50 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}

var compressionCodecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}
