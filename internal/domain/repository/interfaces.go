package repository

import (
	"context"
	"errors"
	"time"

	"AeroTrend/internal/domain/models"
)

// ErrNotFound is returned by stores when nothing is recorded for a session.
var ErrNotFound = errors.New("repository: not found")

// TelemetryStream is a live source of tick frames.
type TelemetryStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.TickFrame, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ResultPublisher fans classification results out to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.ClassificationResult) error
	PublishBatch(ctx context.Context, rs []*models.ClassificationResult) error
	Close() error
}

// HistoryQuery selects stored results of one session, newest first.
type HistoryQuery struct {
	SessionID string
	From      time.Time
	To        time.Time
	Limit     int
}

// ResultStore persists results for later inspection.
type ResultStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, r *models.ClassificationResult) error
	SaveBatch(ctx context.Context, rs []*models.ClassificationResult) error
	History(ctx context.Context, q HistoryQuery) ([]models.ClassificationResult, error)
	Health(ctx context.Context) error
	Close() error
}

// HistoryForgetter is implemented by stores whose history lives only as
// long as the session that produced it.
type HistoryForgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

// LatestCache keeps the most recent result per session.
type LatestCache interface {
	SetLatest(ctx context.Context, r *models.ClassificationResult) error
	Latest(ctx context.Context, sessionID string) (models.ClassificationResult, error)
	LatestMany(ctx context.Context, sessionIDs ...string) (map[string]models.ClassificationResult, error)
	Forget(ctx context.Context, sessionID string) error
	ForgetAll(ctx context.Context) error
}

type Metrics interface {
	RecordTick(preset, outcome string)
	RecordLabel(preset, previous, current string, confidence float64, anomaly bool)
	RecordError(kind string)
	SetActiveSessions(n int)
	RecordLatency(op string, seconds float64)
}
