package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"AeroTrend/internal/domain/models"
)

// ReplayStats summarizes one replay run.
type ReplayStats struct {
	Rows     int                 `json:"rows"`
	Warm     int                 `json:"warm"`
	Rejected int                 `json:"rejected"`
	Labels   map[string]int      `json:"labels"`
	Last     models.SessionState `json:"last_state"`
}

// Replayer feeds recorded samples through a session.
type Replayer struct {
	manager *SessionManager
}

func NewReplayer(manager *SessionManager) *Replayer {
	return &Replayer{manager: manager}
}

// ReplayCSV reads one tick per row and calls emit for every result. A header
// row naming the session channels reorders columns to channel order; a "t"
// or "timestamp" column is used as the tick time. Without a header, columns
// are taken in channel order. Rows the session rejects are counted and
// skipped unless strict is set.
func (r *Replayer) ReplayCSV(ctx context.Context, sessionID string, in io.Reader, strict bool,
	emit func(models.ClassificationResult) error) (ReplayStats, error) {
	info, err := r.manager.Get(sessionID)
	if err != nil {
		return ReplayStats{}, err
	}
	stats := ReplayStats{Labels: make(map[string]int)}

	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	var layout *columnLayout
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if layout == nil {
			l, isHeader, err := newColumnLayout(rec, info.Channels)
			if err != nil {
				return stats, fmt.Errorf("csv line %d: %w", line, err)
			}
			layout = l
			if isHeader {
				continue
			}
		}

		frame, err := layout.frame(sessionID, rec)
		if err != nil {
			return stats, fmt.Errorf("csv line %d: %w", line, err)
		}
		stats.Rows++

		res, err := r.manager.TickFrame(ctx, frame)
		if err != nil {
			if strict {
				return stats, fmt.Errorf("csv line %d: %w", line, err)
			}
			stats.Rejected++
			continue
		}
		if res.Warm {
			stats.Warm++
			stats.Labels[res.Label.String()]++
		}
		if emit != nil {
			if err := emit(res); err != nil {
				return stats, err
			}
		}
	}

	if info, err = r.manager.Get(sessionID); err == nil {
		stats.Last = info.State
	}
	return stats, nil
}

// columnLayout maps CSV columns onto channel positions.
type columnLayout struct {
	channels []int // column index per channel
	tsColumn int   // -1 when absent
}

func newColumnLayout(first []string, channels []string) (*columnLayout, bool, error) {
	if !looksLikeHeader(first) {
		if len(first) != len(channels) {
			return nil, false, fmt.Errorf("%d columns for %d channels", len(first), len(channels))
		}
		l := &columnLayout{channels: make([]int, len(channels)), tsColumn: -1}
		for i := range channels {
			l.channels[i] = i
		}
		return l, false, nil
	}

	byName := make(map[string]int, len(first))
	for i, h := range first {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	l := &columnLayout{channels: make([]int, len(channels)), tsColumn: -1}
	for _, name := range []string{"t", "timestamp"} {
		if i, ok := byName[name]; ok {
			l.tsColumn = i
			break
		}
	}
	for ci, name := range channels {
		i, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, true, fmt.Errorf("header has no column for channel %q", name)
		}
		l.channels[ci] = i
	}
	return l, true, nil
}

func (l *columnLayout) frame(sessionID string, rec []string) (*models.TickFrame, error) {
	f := &models.TickFrame{SessionID: sessionID, Samples: make([]float64, len(l.channels))}
	for ci, col := range l.channels {
		if col >= len(rec) {
			return nil, fmt.Errorf("missing column %d", col+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", col+1, err)
		}
		f.Samples[ci] = v
	}
	if l.tsColumn >= 0 && l.tsColumn < len(rec) {
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[l.tsColumn]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
		f.Timestamp = ts
	}
	return f, nil
}

func looksLikeHeader(rec []string) bool {
	for _, v := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return true
		}
	}
	return false
}
