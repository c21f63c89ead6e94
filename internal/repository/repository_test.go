package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
	"AeroTrend/pkg/cache"
	pkgkafka "AeroTrend/pkg/kafka"
)

func result(id string, seq uint64, ts time.Time, label models.Label) *models.ClassificationResult {
	return &models.ClassificationResult{
		SessionID:       id,
		Seq:             seq,
		Timestamp:       ts,
		Label:           label,
		Confidence:      0.9,
		PerChannelTrend: []float64{1, 2, 3, 4, 5},
		WeightedTrend:   1.5,
		Warm:            true,
	}
}

func TestMemoryResultStoreHistory(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryResultStore(2, 3)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Save(ctx, result("a", uint64(i), base.Add(time.Duration(i)*time.Second), models.LabelStable)))
	}

	got, err := s.History(ctx, domrepo.HistoryQuery{SessionID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{got[0].Seq, got[1].Seq, got[2].Seq})

	got, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "a", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].Seq)

	got, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "a", To: base.Add(4 * time.Second)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Seq)

	_, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "missing"})
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestMemoryResultStoreEvictsLeastRecentSession(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryResultStore(2, 10)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.SaveBatch(ctx, []*models.ClassificationResult{
		result("a", 1, now, models.LabelStable),
		result("b", 1, now, models.LabelStable),
		result("c", 1, now, models.LabelStable),
	}))

	_, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "a"})
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	_, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "c"})
	assert.NoError(t, err)

	require.NoError(t, s.Forget(ctx, "c"))
	_, err = s.History(ctx, domrepo.HistoryQuery{SessionID: "c"})
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestMemoryResultStoreRejectsBadLimit(t *testing.T) {
	_, err := NewMemoryResultStore(10, 0)
	assert.Error(t, err)
	_, err = NewMemoryResultStore(0, 10)
	assert.Error(t, err)
}

func TestCacheLatestStore(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	s := NewCacheLatestStore(mem, time.Minute)

	_, err := s.Latest(ctx, "a")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	require.NoError(t, s.SetLatest(ctx, result("a", 1, time.Unix(10, 0), models.LabelStable)))
	require.NoError(t, s.SetLatest(ctx, result("a", 2, time.Unix(11, 0), models.LabelIncreasing)))
	require.NoError(t, s.SetLatest(ctx, result("b", 1, time.Unix(11, 0), models.LabelAnomaly)))

	got, err := s.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Seq)
	assert.Equal(t, models.LabelIncreasing, got.Label)

	n, err := s.Published(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	many, err := s.LatestMany(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, models.LabelAnomaly, many["b"].Label)

	require.NoError(t, s.Forget(ctx, "a"))
	_, err = s.Latest(ctx, "a")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	n, err = s.Published(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.ForgetAll(ctx))
	_, err = s.Latest(ctx, "b")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaResultPublisherKeysBySession(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	p := NewKafkaResultPublisher(pkgkafka.NewProducerWithWriter(w, "none"), "aerotrend.results")

	require.NoError(t, p.Publish(ctx, result("s-1", 7, time.Unix(5, 0), models.LabelDecreasing)))
	require.NoError(t, p.PublishBatch(ctx, []*models.ClassificationResult{
		result("s-2", 1, time.Unix(6, 0), models.LabelStable),
		nil,
		result("s-3", 1, time.Unix(6, 0), models.LabelStable),
	}))
	require.NoError(t, p.PublishBatch(ctx, nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "aerotrend.results", w.msgs[0].Topic)
	assert.Equal(t, []byte("s-1"), w.msgs[0].Key)
	assert.Equal(t, "DECREASING", string(w.msgs[0].Headers[0].Value))
	assert.Equal(t, "7", string(w.msgs[0].Headers[1].Value))

	var decoded models.ClassificationResult
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.LabelDecreasing, decoded.Label)
	assert.Equal(t, uint64(7), decoded.Seq)
	assert.Equal(t, []byte("s-3"), w.msgs[2].Key)
}

func TestBuildHistoryQuery(t *testing.T) {
	from := time.Unix(100, 0)
	q, args := buildHistoryQuery("trend_results", domrepo.HistoryQuery{SessionID: "x", From: from, Limit: 50})
	assert.Contains(t, q, "FROM trend_results WHERE session_id = ?")
	assert.Contains(t, q, "AND ts >= ?")
	assert.NotContains(t, q, "ts <= ?")
	assert.Contains(t, q, "ORDER BY ts DESC, seq DESC LIMIT ?")
	assert.Equal(t, []interface{}{"x", from.UTC(), 50}, args)

	q, args = buildHistoryQuery("t", domrepo.HistoryQuery{SessionID: "y"})
	assert.NotContains(t, q, "LIMIT")
	assert.Len(t, args, 1)
}

func TestBuildBatchInsertSkipsUnaddressedRows(t *testing.T) {
	q, args := buildBatchInsert("trend_results", []*models.ClassificationResult{
		result("a", 1, time.Unix(1, 0), models.LabelStable),
		nil,
		{Label: models.LabelStable},
		result("b", 1, time.Unix(1, 0), models.LabelAnomaly),
	})
	assert.Contains(t, q, "INSERT INTO trend_results")
	assert.Len(t, args, 22)
	assert.Equal(t, "ANOMALY", args[11+3])
	assert.Equal(t, uint8(5), args[11+4])

	q, args = buildBatchInsert("trend_results", nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestResultsSchemaUsesTable(t *testing.T) {
	stmts := ResultsSchema("custom_results")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS custom_results")
	assert.Contains(t, stmts[0], "per_channel_trend Array(Float64)")
}
