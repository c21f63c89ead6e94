package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
	pkgch "AeroTrend/pkg/clickhouse"
	applogger "AeroTrend/pkg/logger"
)

const defaultResultsTable = "trend_results"

const insertChunkSize = 2000

// ResultsSchema returns the DDL for the results table.
func ResultsSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts                DateTime64(3),
            session_id        String,
            seq               UInt64,
            label             LowCardinality(String),
            label_code        UInt8,
            confidence        Float64,
            weighted_trend    Float64,
            max_variance      Float64,
            per_channel_trend Array(Float64),
            anomaly           UInt8,
            warm              UInt8
        )
        ENGINE = MergeTree
        PARTITION BY toYYYYMMDD(ts)
        ORDER BY (session_id, ts, seq)
    `, table)}
}

// CHResultStore implements ResultStore backed by ClickHouse.
type CHResultStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHResultStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHResultStore {
	if table == "" {
		table = defaultResultsTable
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHResultStore{ch: ch, db: ch.DB(), table: table, l: l}
}

func (s *CHResultStore) Init(ctx context.Context) error {
	return s.ch.Migrate(ctx, ResultsSchema(s.table)...)
}

func (s *CHResultStore) Save(ctx context.Context, r *models.ClassificationResult) error {
	if r == nil {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, resultColumns, resultPlaceholder)
	if _, err := s.db.ExecContext(ctx, q, resultArgs(r)...); err != nil {
		s.l.Error("clickhouse save result error",
			applogger.String("table", s.table),
			applogger.String("session_id", r.SessionID),
			applogger.Error(err),
		)
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// SaveBatch inserts results in multi-row chunks.
func (s *CHResultStore) SaveBatch(ctx context.Context, rs []*models.ClassificationResult) error {
	for start := 0; start < len(rs); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(rs) {
			end = len(rs)
		}
		q, args := buildBatchInsert(s.table, rs[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save batch error",
				applogger.String("table", s.table),
				applogger.Int("rows", end-start),
				applogger.Error(err),
			)
			return fmt.Errorf("save batch: %w", err)
		}
	}
	return nil
}

func (s *CHResultStore) History(ctx context.Context, hq domrepo.HistoryQuery) ([]models.ClassificationResult, error) {
	q, args := buildHistoryQuery(s.table, hq)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse history query error",
			applogger.String("table", s.table),
			applogger.String("session_id", hq.SessionID),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	out := make([]models.ClassificationResult, 0, hq.Limit)
	for rows.Next() {
		var (
			r        models.ClassificationResult
			label    string
			anomaly  uint8
			warm     uint8
			channels []float64
		)
		if err := rows.Scan(&r.Timestamp, &r.SessionID, &r.Seq, &label, &r.Confidence,
			&r.WeightedTrend, &r.MaxVariance, &channels, &anomaly, &warm); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Label, _ = models.ParseLabel(label)
		r.PerChannelTrend = channels
		r.Anomaly = anomaly == 1
		r.Warm = warm == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHResultStore) Health(ctx context.Context) error {
	return s.ch.Ping(ctx)
}

func (s *CHResultStore) Close() error {
	return nil // client owned by the app
}

const (
	resultColumns     = "ts, session_id, seq, label, label_code, confidence, weighted_trend, max_variance, per_channel_trend, anomaly, warm"
	resultPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
)

func resultArgs(r *models.ClassificationResult) []interface{} {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	trends := r.PerChannelTrend
	if trends == nil {
		trends = []float64{}
	}
	return []interface{}{
		ts.UTC(),
		r.SessionID,
		r.Seq,
		r.Label.String(),
		uint8(r.Label.Code()),
		r.Confidence,
		r.WeightedTrend,
		r.MaxVariance,
		trends,
		boolToUInt8(r.Anomaly),
		boolToUInt8(r.Warm),
	}
}

func buildBatchInsert(table string, rs []*models.ClassificationResult) (string, []interface{}) {
	values := make([]string, 0, len(rs))
	args := make([]interface{}, 0, len(rs)*11)
	for _, r := range rs {
		if r == nil || r.SessionID == "" {
			continue
		}
		values = append(values, resultPlaceholder)
		args = append(args, resultArgs(r)...)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, resultColumns, strings.Join(values, ",")), args
}

func buildHistoryQuery(table string, hq domrepo.HistoryQuery) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT ts, session_id, seq, label, confidence, weighted_trend, max_variance, per_channel_trend, anomaly, warm FROM %s WHERE session_id = ?", table)
	args := []interface{}{hq.SessionID}
	if !hq.From.IsZero() {
		b.WriteString(" AND ts >= ?")
		args = append(args, hq.From.UTC())
	}
	if !hq.To.IsZero() {
		b.WriteString(" AND ts <= ?")
		args = append(args, hq.To.UTC())
	}
	b.WriteString(" ORDER BY ts DESC, seq DESC")
	if hq.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, hq.Limit)
	}
	return b.String(), args
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
