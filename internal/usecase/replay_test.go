package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AeroTrend/internal/domain/models"
)

func zeroRows(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("0,0,0,0,0\n")
	}
	return sb.String()
}

func TestReplayCSVWithoutHeader(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Create(context.Background(), CreateRequest{ID: "r1"})
	require.NoError(t, err)

	var seen []models.ClassificationResult
	stats, err := NewReplayer(h.mgr).ReplayCSV(context.Background(), "r1", strings.NewReader(zeroRows(12)), false,
		func(r models.ClassificationResult) error {
			seen = append(seen, r)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Rows)
	assert.Equal(t, 3, stats.Warm)
	assert.Equal(t, 3, stats.Labels["STABLE"])
	assert.Equal(t, models.LabelStable, stats.Last.PreviousLabel)
	require.Len(t, seen, 12)
	assert.False(t, seen[8].Warm)
	assert.True(t, seen[9].Warm)
}

func TestReplayCSVHeaderReordersColumns(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Create(context.Background(), CreateRequest{ID: "r2"})
	require.NoError(t, err)

	var sb strings.Builder
	sb.WriteString("# recorded on the bench\n")
	sb.WriteString("t,mach,pressure,temperature,altitude,velocity\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "%d,0.8,1013,15,%d,250\n", 1700000000+i, 10000+i)
	}

	var last models.ClassificationResult
	stats, err := NewReplayer(h.mgr).ReplayCSV(context.Background(), "r2", strings.NewReader(sb.String()), true,
		func(r models.ClassificationResult) error {
			last = r
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Rows)
	require.True(t, last.Warm)
	// altitude is the second channel and the only one moving
	assert.InDelta(t, 0.0, last.PerChannelTrend[0], 1e-9)
	assert.InDelta(t, 1.0, last.PerChannelTrend[1], 1e-9)
	assert.Equal(t, time.Unix(1700000010, 0).UTC(), last.Timestamp.UTC())
}

func TestReplayCSVRejectedRows(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Create(context.Background(), CreateRequest{ID: "r3"})
	require.NoError(t, err)

	in := "0,0,0,0,0\n0,NaN,0,0,0\n0,0,0,0,0\n"
	stats, err := NewReplayer(h.mgr).ReplayCSV(context.Background(), "r3", strings.NewReader(in), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Rejected)

	_, err = NewReplayer(h.mgr).ReplayCSV(context.Background(), "r3", strings.NewReader(in), true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv line 2")
}

func TestReplayCSVErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Create(context.Background(), CreateRequest{ID: "r4"})
	require.NoError(t, err)
	r := NewReplayer(h.mgr)

	_, err = r.ReplayCSV(context.Background(), "missing", strings.NewReader(zeroRows(1)), false, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = r.ReplayCSV(context.Background(), "r4", strings.NewReader("1,2,3\n"), false, nil)
	assert.ErrorContains(t, err, "3 columns for 5 channels")

	_, err = r.ReplayCSV(context.Background(), "r4", strings.NewReader("velocity,altitude\n1,2\n"), false, nil)
	assert.ErrorContains(t, err, `no column for channel "temperature"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReplayCSV(ctx, "r4", strings.NewReader(zeroRows(3)), false, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
