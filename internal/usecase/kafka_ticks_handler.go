package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
	"AeroTrend/internal/services/trend"
	pkgkafka "AeroTrend/pkg/kafka"
)

// KafkaTicksHandler consumes JSON tick frames and feeds them to the session
// manager. Frames without a session id use the record key.
type KafkaTicksHandler struct {
	topic      string
	manager    *SessionManager
	metrics    domrepo.Metrics
	autoCreate string // preset for unknown sessions; empty disables
}

type TicksHandlerOption func(*KafkaTicksHandler)

// WithAutoCreate creates unknown sessions with the given preset.
func WithAutoCreate(preset string) TicksHandlerOption {
	return func(h *KafkaTicksHandler) { h.autoCreate = preset }
}

func NewKafkaTicksHandler(topic string, manager *SessionManager, metrics domrepo.Metrics, opts ...TicksHandlerOption) *KafkaTicksHandler {
	h := &KafkaTicksHandler{topic: topic, manager: manager, metrics: metrics}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {session_id, t, samples | words}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var f models.TickFrame
	if err := json.Unmarshal(b, &f); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("%w: decode tick frame: %v", pkgkafka.ErrPermanent, err)
	}
	if f.SessionID == "" {
		f.SessionID = pkgkafka.MessageKeyFrom(ctx)
	}
	if f.SessionID == "" {
		h.metrics.RecordError("consumer_no_session")
		return fmt.Errorf("%w: tick frame without session id", pkgkafka.ErrPermanent)
	}
	if f.Timestamp != 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(f.Time()).Seconds())
	}

	if h.autoCreate != "" {
		if _, err := h.manager.Ensure(ctx, f.SessionID, h.autoCreate); err != nil {
			h.metrics.RecordError("consumer_session")
			return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
		}
	}

	_, err := h.manager.TickFrame(ctx, &f)
	if err != nil {
		h.metrics.RecordError("consumer_tick")
		if permanent(err) {
			return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
		}
		return err
	}
	return nil
}

// permanent reports errors that the same payload will always reproduce.
func permanent(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrFrameDecode) ||
		errors.Is(err, trend.ErrChannelCount) ||
		errors.Is(err, trend.ErrWindowLength) ||
		errors.Is(err, trend.ErrNonFiniteSample) ||
		errors.Is(err, trend.ErrSessionClosed)
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
