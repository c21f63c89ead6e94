package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AeroTrend/internal/repository"
	"AeroTrend/internal/usecase"
	"AeroTrend/pkg/cache"
	"AeroTrend/pkg/logger"
	"AeroTrend/pkg/metrics"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newAPI(t *testing.T) *echo.Echo {
	t.Helper()
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	store, err := repository.NewMemoryResultStore(16, 100)
	require.NoError(t, err)
	mem := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = mem.Close() })

	sink := usecase.NewResultSink(rec,
		usecase.WithStore(store),
		usecase.WithLatestCache(repository.NewCacheLatestStore(mem, time.Minute)),
	)
	mgr := usecase.NewSessionManager(sink, rec)

	e := echo.New()
	NewSessionsHandler(logger.Nop(), mgr, nil).RegisterRoutes(e)
	NewARINCHandler(logger.Nop()).RegisterRoutes(e)
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	e := newAPI(t)

	code, env := call(t, e, http.MethodPost, "/api/v1/sessions", `{"id":"s1"}`)
	require.Equal(t, http.StatusCreated, code)
	var info usecase.SessionInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "s1", info.ID)
	assert.Equal(t, "generic", info.Preset)

	code, _ = call(t, e, http.MethodPost, "/api/v1/sessions", `{"id":"s1"}`)
	assert.Equal(t, http.StatusConflict, code)

	var tick TickResponse
	for i := 0; i < 10; i++ {
		code, env = call(t, e, http.MethodPost, "/api/v1/sessions/s1/ticks", `{"samples":[0,0,0,0,0]}`)
		require.Equal(t, http.StatusOK, code)
	}
	require.NoError(t, json.Unmarshal(env.Data, &tick))
	assert.True(t, tick.Warm)
	assert.Equal(t, "STABLE", tick.Label.String())
	assert.Equal(t, 0.9, tick.Confidence)
	assert.Equal(t, 1.0, tick.HostFrame.State)
	assert.Len(t, tick.HostFrame.Trends, 6)

	code, env = call(t, e, http.MethodGet, "/api/v1/sessions/s1/latest", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &tick))
	assert.Equal(t, uint64(10), tick.Seq)

	code, env = call(t, e, http.MethodGet, "/api/v1/sessions/latest?ids=s1,nope", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"s1"`)
	assert.NotContains(t, string(env.Data), `"nope"`)

	code, env = call(t, e, http.MethodGet, "/api/v1/sessions/s1/history?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":1`)

	code, env = call(t, e, http.MethodPost, "/api/v1/sessions/s1/reset", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Zero(t, info.Fill)

	code, env = call(t, e, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":1`)

	code, _ = call(t, e, http.MethodDelete, "/api/v1/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = call(t, e, http.MethodGet, "/api/v1/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTickValidationErrors(t *testing.T) {
	e := newAPI(t)
	code, _ := call(t, e, http.MethodPost, "/api/v1/sessions", `{"id":"s1"}`)
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing samples", "/api/v1/sessions/s1/ticks", `{}`, http.StatusBadRequest, "ERR_REQUIRED_WITHOUT"},
		{"channel count", "/api/v1/sessions/s1/ticks", `{"samples":[1,2]}`, http.StatusBadRequest, "ERR_CHANNEL_COUNT"},
		{"unknown session", "/api/v1/sessions/zz/ticks", `{"samples":[0,0,0,0,0]}`, http.StatusNotFound, "ERR_NOT_FOUND"},
		{"words without labels", "/api/v1/sessions/s1/ticks", `{"words":[{"label":83,"bcd":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]}]}`, http.StatusUnprocessableEntity, "ERR_FRAME_DECODE"},
		{"window length", "/api/v1/sessions/s1/classify", `{"windows":[[1],[1],[1],[1],[1]]}`, http.StatusBadRequest, "ERR_WINDOW_LENGTH"},
		{"bad preset", "/api/v1/sessions", `{"preset":"glider"}`, http.StatusBadRequest, "ERR_ONEOF"},
		{"bad custom config", "/api/v1/sessions", `{"config":{"channels":["a","b"],"weights":[0.5,0.6],"profile":{"kind":"generic","bound":10}}}`, http.StatusUnprocessableEntity, "ERR_INVALID_CONFIG"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := call(t, e, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, code)
			assert.Contains(t, string(env.Data), tc.code)
		})
	}
}

func TestCustomConfigSession(t *testing.T) {
	e := newAPI(t)
	code, env := call(t, e, http.MethodPost, "/api/v1/sessions",
		`{"id":"c1","config":{"name":"pair","channels":["pitch","roll"],"weights":[0.5,0.5],"profile":{"kind":"generic","bound":90}}}`)
	require.Equal(t, http.StatusCreated, code, string(env.Data))
	var info usecase.SessionInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "pair", info.Preset)
	assert.Equal(t, []string{"pitch", "roll"}, info.Channels)
	assert.Equal(t, 10, info.WindowSize)
}

func TestPresets(t *testing.T) {
	e := newAPI(t)
	code, env := call(t, e, http.MethodGet, "/api/v1/presets", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"flight"`)
	assert.Contains(t, string(env.Data), `"per_channel"`)
}

func TestARINCEndpoints(t *testing.T) {
	e := newAPI(t)

	code, env := call(t, e, http.MethodPost, "/api/v1/arinc/bcd/decode", `{"bits":"001 0010 0011 0100 0101"}`)
	require.Equal(t, http.StatusOK, code)
	var bcd BCDResponse
	require.NoError(t, json.Unmarshal(env.Data, &bcd))
	assert.Equal(t, 12345.0, bcd.Value)
	assert.Equal(t, [5]int{1, 2, 3, 4, 5}, bcd.Digits)
	assert.Len(t, bcd.Array, 19)

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/encode", `{"value":12345.9}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &bcd))
	assert.Equal(t, "0010010001101000101", bcd.Bits)
	assert.Equal(t, 12345.0, bcd.Value)

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/encode", `{"value":-5}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &bcd))
	assert.Equal(t, 0.0, bcd.Value)

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/encode", `{"value":90000,"strict":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(env.Data), "ERR_BCD_RANGE")

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/decode", `{"bits":"1111111111111111111","strict":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(env.Data), "ERR_BCD_DIGIT")

	code, _ = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/decode", `{"bits":"0101"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = call(t, e, http.MethodPost, "/api/v1/arinc/bcd/encode", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/label/reverse", `{"octal":"312"}`)
	require.Equal(t, http.StatusOK, code)
	var lbl LabelResponse
	require.NoError(t, json.Unmarshal(env.Data, &lbl))
	assert.Equal(t, uint8(0o312), lbl.Label)
	assert.Equal(t, uint8(0x53), lbl.Wire)

	code, env = call(t, e, http.MethodPost, "/api/v1/arinc/label/reverse", `{"wire":83}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &lbl))
	assert.Equal(t, "312", lbl.Octal)
}
