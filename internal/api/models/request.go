package models

// PreprocessRequest overrides the server configuration for one run. Empty fields keep the server value.
type PreprocessRequest struct {
	Categories     []string `json:"categories,omitempty"`
	Step           string   `json:"step,omitempty"` // Go duration, e.g. "1h", "15m"
	Join           string   `json:"join,omitempty" binding:"omitempty,oneof=outer inner left"`
	Anchor         string   `json:"anchor,omitempty"`
	Fill           string   `json:"fill,omitempty" binding:"omitempty,oneof=nan ffill interpolate"`
	FillLimit      int      `json:"fill_limit,omitempty" binding:"gte=0"`
	Format         string   `json:"format,omitempty" binding:"omitempty,oneof=csv parquet sql"`
	Name           string   `json:"name,omitempty"`
	Start          string   `json:"start,omitempty"` // RFC 3339
	End            string   `json:"end,omitempty"`
	DropIncomplete bool     `json:"drop_incomplete,omitempty"`
}

// GapsQuery is the query string of the gaps endpoint.
type GapsQuery struct {
	Step string `form:"step"`
}

// DatasetQuery limits the preview rows of a dataset.
type DatasetQuery struct {
	Limit int `form:"limit" binding:"gte=0"`
}
