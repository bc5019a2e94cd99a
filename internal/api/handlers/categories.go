package handlers

import (
	"fmt"
	"net/http"
	"time"

	"epf-data/internal/analysis"
	"epf-data/internal/api/models"
	"epf-data/internal/model"
	"epf-data/internal/preprocess"
	"epf-data/internal/registry"

	"github.com/gin-gonic/gin"
)

// ListCategories handles GET /api/v1/categories
func (h *Handler) ListCategories(c *gin.Context) {
	reg := registry.New(h.cfg.RawDataRoot, registry.WithFileFormat(h.cfg.FileFormat))
	out := make([]models.CategoryInfo, 0, len(reg.Categories()))
	for _, cat := range reg.Categories() {
		info := models.CategoryInfo{Name: string(cat), Dir: reg.Dir(cat), Files: []string{}}
		if s, err := reg.Schema(cat); err == nil {
			info.TimeColumn = s.TimeColumn
			if s.Resolution > 0 {
				info.Resolution = s.Resolution.String()
			}
			for _, v := range s.Values {
				info.Columns = append(info.Columns, v.Name)
			}
		}
		e, err := reg.Lookup(cat)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Available = true
			info.Files = e.Files
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"categories": out, "raw_data_root": reg.Root()})
}

// CategorySummary handles GET /api/v1/categories/:category/summary
func (h *Handler) CategorySummary(c *gin.Context) {
	cat, err := model.ParseCategory(c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.runner(h.cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	s, err := r.Load(c.Request.Context(), cat)
	if err != nil {
		writeError(c, err)
		return
	}
	sum := analysis.SummarizeSeries(s)
	c.JSON(http.StatusOK, models.CategorySummaryResponse{
		Category:   string(sum.Category),
		Records:    sum.Records,
		Start:      sum.Start,
		End:        sum.End,
		Resolution: sum.Resolution,
		Columns:    columnStats(sum.Columns),
	})
}

// CategoryGaps handles GET /api/v1/categories/:category/gaps?step=1h
func (h *Handler) CategoryGaps(c *gin.Context) {
	var q models.GapsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	cat, err := model.ParseCategory(c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	step := time.Duration(h.cfg.Step)
	if q.Step != "" {
		if step, err = time.ParseDuration(q.Step); err != nil || step <= 0 {
			badRequest(c, "INVALID_STEP", fmt.Sprintf("step must be a positive duration, got %q", q.Step))
			return
		}
	}
	r, err := h.runner(h.cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	s, err := r.Load(c.Request.Context(), cat)
	if err != nil {
		writeError(c, err)
		return
	}
	missing := preprocess.FindGaps(s, step)
	if missing == nil {
		missing = []time.Time{}
	}
	c.JSON(http.StatusOK, models.GapsResponse{
		Category: string(cat),
		Step:     step.String(),
		Count:    len(missing),
		Missing:  missing,
	})
}

func columnStats(in []analysis.ColumnSummary) []models.ColumnStats {
	out := make([]models.ColumnStats, len(in))
	for i, s := range in {
		out[i] = models.ColumnStats{
			Column:  s.Column,
			Count:   s.Count,
			Missing: s.Missing,
			Min:     models.Float(s.Min),
			Max:     models.Float(s.Max),
			Mean:    models.Float(s.Mean),
			P05:     models.Float(s.P05),
			P95:     models.Float(s.P95),
		}
	}
	return out
}
