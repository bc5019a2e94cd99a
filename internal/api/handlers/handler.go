package handlers

import (
	"errors"
	"net/http"

	"epf-data/internal/api/models"
	"epf-data/internal/config"
	"epf-data/internal/metrics"
	"epf-data/internal/model"
	"epf-data/internal/pipeline"
	"epf-data/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the data endpoints from one base configuration.
type Handler struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	db      *store.SQLStore
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithSQLStore(s *store.SQLStore) Option {
	return func(h *Handler) { h.db = s }
}

func NewHandler(cfg *config.Config, opts ...Option) *Handler {
	h := &Handler{cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) runner(cfg *config.Config) (*pipeline.Runner, error) {
	return pipeline.New(cfg,
		pipeline.WithLogger(h.logger),
		pipeline.WithMetrics(h.metrics),
		pipeline.WithSQLStore(h.db),
	)
}

// statusFor maps pipeline error kinds onto HTTP statuses.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindSchemaMismatch, model.KindParse, model.KindAlignment:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	code := string(kind)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	detail := models.ErrorDetail{Code: code, Message: err.Error()}
	var me *model.Error
	if errors.As(err, &me) {
		detail.Details = map[string]any{}
		if me.Category != "" {
			detail.Details["category"] = me.Category
		}
		if me.Path != "" {
			detail.Details["path"] = me.Path
		}
		if me.Line > 0 {
			detail.Details["line"] = me.Line
		}
		if me.Column != "" {
			detail.Details["column"] = me.Column
		}
		if len(detail.Details) == 0 {
			detail.Details = nil
		}
	}
	c.JSON(statusFor(kind), models.ErrorResponse{Error: detail})
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: msg},
	})
}
