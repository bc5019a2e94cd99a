package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/preprocess"
)

const manifestSuffix = ".manifest.json"

// Manifest describes one written dataset. It sits next to file outputs as <name>.manifest.json.
type Manifest struct {
	Name          string                    `json:"name"`
	RunID         string                    `json:"run_id"`
	CreatedAt     time.Time                 `json:"created_at"`
	Format        Format                    `json:"format"`
	File          string                    `json:"file,omitempty"`
	Step          string                    `json:"step"`
	Rows          int                       `json:"rows"`
	Columns       []string                  `json:"columns"`
	Categories    []model.Category          `json:"categories"`
	Join          string                    `json:"join"`
	Fill          string                    `json:"fill"`
	FillOverrides map[model.Category]string `json:"fill_overrides,omitempty"` // categories not filled with Fill
	Report        *preprocess.Report        `json:"report,omitempty"`
}

func ManifestPath(dir, name string) string {
	return filepath.Join(dir, name+manifestSuffix)
}

func WriteManifest(dir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(dir, m.Name), append(b, '\n'), 0o644)
}

func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &model.Error{Kind: model.KindNotFound, Path: path, Msg: "no manifest"}
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, &model.Error{Kind: model.KindParse, Path: path, Msg: "bad manifest", Err: err}
	}
	return &m, nil
}

// ListManifests returns the manifests in dir sorted by dataset name.
func ListManifests(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Manifest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestSuffix) {
			continue
		}
		m, err := ReadManifest(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
