package usecase

import (
	"context"
	"errors"
	"sync"

	"AeroTrend/internal/domain/models"
	drepo "AeroTrend/internal/domain/repository"
	applogger "AeroTrend/pkg/logger"
)

var errStreamClosed = errors.New("telemetry stream closed")

// TelemetryCollector drains a telemetry stream into the session manager.
// Frames without a session id go to the default session, which is created
// with the configured preset on start.
type TelemetryCollector struct {
	stream    drepo.TelemetryStream
	manager   *SessionManager
	metrics   drepo.Metrics
	log       *applogger.Logger
	sessionID string
	preset    string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewTelemetryCollector(stream drepo.TelemetryStream, manager *SessionManager, metrics drepo.Metrics,
	log *applogger.Logger, sessionID, preset string) *TelemetryCollector {
	if log == nil {
		log = applogger.Nop()
	}
	return &TelemetryCollector{
		stream:    stream,
		manager:   manager,
		metrics:   metrics,
		log:       log,
		sessionID: sessionID,
		preset:    preset,
		done:      make(chan struct{}),
	}
}

// IsConnected returns true if the telemetry stream is connected.
func (c *TelemetryCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TelemetryCollector) Start(ctx context.Context) error {
	if c.sessionID != "" {
		if _, err := c.manager.Ensure(ctx, c.sessionID, c.preset); err != nil {
			return err
		}
	}
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.consume(runCtx)
	return nil
}

func (c *TelemetryCollector) consume(ctx context.Context) {
	defer close(c.done)
	for {
		frames, errs := c.stream.Read(ctx)
		if err := c.drain(ctx, frames, errs); err == nil {
			return
		}
		c.metrics.RecordError("telemetry_stream")
		for {
			if ctx.Err() != nil {
				return
			}
			err := c.stream.Reconnect(ctx)
			if err == nil {
				c.log.Info("telemetry reconnected")
				break
			}
			c.metrics.RecordError("telemetry_reconnect")
			c.log.Warn("telemetry reconnect failed", applogger.Error(err))
		}
	}
}

// drain processes frames until the stream ends. It returns the stream
// error, or nil when ctx ended.
func (c *TelemetryCollector) drain(ctx context.Context, frames <-chan *models.TickFrame, errs <-chan error) error {
	var streamErr error
	for frames != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				c.log.Warn("telemetry stream error", applogger.Error(err))
				streamErr = err
			}
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.handle(ctx, f)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if streamErr == nil {
		streamErr = errStreamClosed
	}
	return streamErr
}

func (c *TelemetryCollector) handle(ctx context.Context, f *models.TickFrame) {
	if f == nil {
		return
	}
	if f.SessionID == "" {
		f.SessionID = c.sessionID
	}
	if _, err := c.manager.TickFrame(ctx, f); err != nil {
		c.metrics.RecordError("telemetry_tick")
		c.log.Debug("telemetry tick rejected",
			applogger.String("session_id", f.SessionID),
			applogger.Error(err),
		)
	}
}

// Shutdown stops consuming and closes the stream.
func (c *TelemetryCollector) Shutdown(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
			select {
			case <-c.done:
			case <-ctx.Done():
			}
		}
		err = c.stream.Close()
	})
	return err
}
