package handlers

import (
	"context"
	"net/http"
	"time"

	"epf-data/internal/analysis"
	"epf-data/internal/api/models"
	"epf-data/internal/config"
	"epf-data/internal/store"

	"github.com/gin-gonic/gin"
)

const defaultPreviewRows = 24

// Preprocess handles POST /api/v1/preprocess
func (h *Handler) Preprocess(c *gin.Context) {
	var req models.PreprocessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "INVALID_REQUEST", err.Error())
			return
		}
	}
	o := config.Overrides{
		Categories:     req.Categories,
		Join:           req.Join,
		Anchor:         req.Anchor,
		Fill:           req.Fill,
		FillLimit:      req.FillLimit,
		Format:         req.Format,
		Name:           req.Name,
		DropIncomplete: req.DropIncomplete,
	}
	if req.Name != "" && !config.ValidName(req.Name) {
		badRequest(c, "INVALID_NAME", "name may not contain path separators")
		return
	}
	if req.Step != "" {
		d, err := time.ParseDuration(req.Step)
		if err != nil || d <= 0 {
			badRequest(c, "INVALID_STEP", "step must be a positive duration such as 1h")
			return
		}
		o.Step = d
	}
	for _, p := range []struct {
		raw string
		dst **time.Time
	}{{req.Start, &o.Start}, {req.End, &o.End}} {
		if p.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, p.raw)
		if err != nil {
			badRequest(c, "INVALID_TIME", "start and end must be RFC 3339 timestamps")
			return
		}
		*p.dst = &t
	}

	cfg := *h.cfg
	cfg.Merge(o)
	if err := cfg.Validate(); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	r, err := h.runner(&cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := r.Preprocess(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"manifest": res.Manifest})
}

// ListDatasets handles GET /api/v1/datasets
func (h *Handler) ListDatasets(c *gin.Context) {
	manifests, err := store.ListManifests(h.cfg.PreprocessedDataRoot)
	if err != nil {
		writeError(c, err)
		return
	}
	if manifests == nil {
		manifests = []*store.Manifest{}
	}
	resp := gin.H{"datasets": manifests, "count": len(manifests)}

	db, done, err := h.sqlStore(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	defer done()
	if db != nil {
		infos, err := db.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if infos == nil {
			infos = []store.DatasetInfo{}
		}
		resp["database"] = infos
	}
	c.JSON(http.StatusOK, resp)
}

// GetDataset handles GET /api/v1/datasets/:name
func (h *Handler) GetDataset(c *gin.Context) {
	var q models.DatasetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPreviewRows
	}
	name := c.Param("name")
	if !config.ValidName(name) {
		badRequest(c, "INVALID_NAME", "name may not contain path separators")
		return
	}

	ctx := c.Request.Context()
	db, done, err := h.sqlStore(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	defer done()
	ds, err := store.Open(ctx, h.cfg.PreprocessedDataRoot, name, db)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := models.DatasetResponse{
		Name:      ds.Name,
		RunID:     ds.Meta.RunID,
		CreatedAt: ds.Meta.CreatedAt,
		Step:      ds.Step.String(),
		Rows:      ds.Rows(),
		Columns:   ds.Columns,
		Stats:     columnStats(analysis.Summarize(ds)),
		Preview:   []models.PreviewRow{},
	}
	for r := 0; r < ds.Rows() && r < q.Limit; r++ {
		row := models.PreviewRow{Start: ds.Index[r], Values: make([]*float64, len(ds.Columns))}
		for i, v := range ds.Values[r] {
			row.Values[i] = models.Float(v)
		}
		resp.Preview = append(resp.Preview, row)
	}
	c.JSON(http.StatusOK, resp)
}

// sqlStore returns the injected SQL store, or opens the configured one when the
// output format is sql. It returns nil when neither applies. done releases it.
func (h *Handler) sqlStore(ctx context.Context) (*store.SQLStore, func(), error) {
	if h.db != nil {
		return h.db, func() {}, nil
	}
	if h.cfg.Output.Format != string(store.FormatSQL) {
		return nil, func() {}, nil
	}
	db, err := store.OpenSQL(ctx, store.Backend(h.cfg.Output.SQLBackend), h.cfg.Output.SQLDSN)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
