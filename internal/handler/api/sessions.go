package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
	"AeroTrend/internal/services/trend"
	"AeroTrend/internal/usecase"
	xhttp "AeroTrend/pkg/http"
	xlogger "AeroTrend/pkg/logger"
	"AeroTrend/pkg/util"
)

// SessionsHandler exposes the classifier session registry over HTTP.
type SessionsHandler struct {
	logger  *xlogger.Logger
	manager *usecase.SessionManager
	limit   echo.MiddlewareFunc
}

func NewSessionsHandler(logger *xlogger.Logger, manager *usecase.SessionManager, limit echo.MiddlewareFunc) *SessionsHandler {
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return &SessionsHandler{logger: logger, manager: manager, limit: limit}
}

func (h *SessionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/presets", h.Presets)
	g.POST("/sessions", h.Create)
	g.GET("/sessions", h.List)
	g.GET("/sessions/latest", h.LatestMany)
	g.GET("/sessions/:id", h.Get)
	g.DELETE("/sessions/:id", h.Close)
	g.POST("/sessions/:id/ticks", h.Tick, h.limit)
	g.POST("/sessions/:id/classify", h.Classify, h.limit)
	g.POST("/sessions/:id/reset", h.Reset)
	g.GET("/sessions/:id/latest", h.Latest)
	g.GET("/sessions/:id/history", h.History)
}

func (h *SessionsHandler) Presets(c echo.Context) error {
	out := make([]PresetResponse, 0, 2)
	for _, name := range []string{"generic", "flight"} {
		cfg, _ := trend.Preset(name)
		_ = cfg.Normalize()
		out = append(out, PresetResponse{Name: name, Config: cfg})
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *SessionsHandler) Create(c echo.Context) error {
	req := &CreateSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	info, err := h.manager.Create(c.Request().Context(), usecase.CreateRequest{
		ID:     req.ID,
		Preset: req.Preset,
		Config: req.Config,
	})
	if err != nil {
		return h.fail(c, "create session", err)
	}
	return xhttp.CreatedResponse(c, info)
}

func (h *SessionsHandler) List(c echo.Context) error {
	rows := h.manager.List()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SessionsHandler) Get(c echo.Context) error {
	req := &SessionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	info, err := h.manager.Get(req.ID)
	if err != nil {
		return h.fail(c, "get session", err)
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *SessionsHandler) Close(c echo.Context) error {
	req := &SessionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.manager.Close(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "close session", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *SessionsHandler) Tick(c echo.Context) error {
	req := &TickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.manager.TickFrame(c.Request().Context(), &models.TickFrame{
		SessionID: req.ID,
		Timestamp: req.Timestamp,
		Samples:   req.Samples,
		Words:     req.Words,
	})
	if err != nil {
		return h.fail(c, "tick", err)
	}
	return xhttp.SuccessResponse(c, TickResponse{ClassificationResult: res, HostFrame: res.HostFrame()})
}

func (h *SessionsHandler) Classify(c echo.Context) error {
	req := &ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.manager.ClassifyWindow(c.Request().Context(), req.ID, req.Windows)
	if err != nil {
		return h.fail(c, "classify", err)
	}
	return xhttp.SuccessResponse(c, TickResponse{ClassificationResult: res, HostFrame: res.HostFrame()})
}

func (h *SessionsHandler) Reset(c echo.Context) error {
	req := &SessionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.manager.Reset(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "reset session", err)
	}
	info, err := h.manager.Get(req.ID)
	if err != nil {
		return h.fail(c, "reset session", err)
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *SessionsHandler) Latest(c echo.Context) error {
	req := &SessionIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.manager.Latest(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "latest", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, TickResponse{ClassificationResult: res, HostFrame: res.HostFrame()})
}

func (h *SessionsHandler) LatestMany(c echo.Context) error {
	req := &LatestManyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.manager.LatestMany(c.Request().Context(), util.SplitTrim(req.IDs))
	if err != nil {
		return h.fail(c, "latest many", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SessionsHandler) History(c echo.Context) error {
	req := &HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.manager.History(c.Request().Context(), domrepo.HistoryQuery{
		SessionID: req.ID,
		From:      util.ParseTimeDefault(req.From, time.Time{}),
		To:        util.ParseTimeDefault(req.To, time.Time{}),
		Limit:     req.Limit,
	})
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SessionsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors to transport errors.
func toAppError(err error) *xhttp.AppError {
	var sampleErr *trend.SampleError
	switch {
	case errors.Is(err, usecase.ErrSessionNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrSessionExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, trend.ErrSessionClosed):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrTooManySessions):
		return xhttp.NewAppError("ERR_SESSION_LIMIT", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, usecase.ErrHistoryUnavailable):
		return xhttp.NewAppError("ERR_HISTORY_UNAVAILABLE", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, usecase.ErrUnknownPreset):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, trend.ErrInvalidConfig):
		return xhttp.UnprocessableError("ERR_INVALID_CONFIG", "config", err.Error()).WithError(err)
	case errors.As(err, &sampleErr):
		return xhttp.UnprocessableError("ERR_NON_FINITE_SAMPLE", "samples", err.Error()).
			WithParam("channel", sampleErr.Channel).
			WithParam("index", sampleErr.Index).
			WithError(err)
	case errors.Is(err, trend.ErrChannelCount):
		return xhttp.NewAppError("ERR_CHANNEL_COUNT", "samples", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, trend.ErrWindowLength):
		return xhttp.NewAppError("ERR_WINDOW_LENGTH", "windows", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, usecase.ErrFrameDecode):
		return xhttp.UnprocessableError("ERR_FRAME_DECODE", "words", err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
