package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"wxexport/pkg/models"
	"wxexport/pkg/storage"
)

// IndexBaseName is the index file name without extension
const IndexBaseName = "articles"

// ArticleMetadata describes one collected article and what exists for it
type ArticleMetadata struct {
	Title         string            `json:"title" yaml:"title"`
	Link          string            `json:"link" yaml:"link"`
	PublishedAt   time.Time         `json:"published_at" yaml:"published_at"`
	PublishedDate string            `json:"published_date" yaml:"published_date"`
	Digest        string            `json:"digest,omitempty" yaml:"digest,omitempty"`
	Cover         string            `json:"cover,omitempty" yaml:"cover,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// Index is the per-output-root catalog file
type Index struct {
	Account     string            `json:"account" yaml:"account"`
	FakeID      string            `json:"fakeid" yaml:"fakeid"`
	Window      string            `json:"window" yaml:"window"`
	RunID       string            `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Downloaded  int               `json:"downloaded" yaml:"downloaded"`
	Skipped     int               `json:"skipped" yaml:"skipped"`
	Articles    []ArticleMetadata `json:"articles" yaml:"articles"`
}

// FromArticle records ref along with the artifacts present under root,
// as paths relative to root
func FromArticle(ref models.ArticleRef, root string) ArticleMetadata {
	meta := ArticleMetadata{
		Title:         ref.Title,
		Link:          ref.Link,
		PublishedAt:   ref.PublishedAt,
		PublishedDate: ref.PublishedDate,
		Digest:        ref.Digest,
		Cover:         ref.Cover,
	}

	for _, f := range models.AllFormats {
		p := ref.ArtifactPath(root, f)
		if !storage.Exists(p) {
			continue
		}
		if meta.Artifacts == nil {
			meta.Artifacts = make(map[string]string)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		meta.Artifacts[string(f)] = filepath.ToSlash(rel)
	}

	return meta
}

// NewIndex builds an index over articles as they exist on disk now
func NewIndex(account, fakeid string, window *models.DateWindow, runID, root string, articles []models.ArticleRef) *Index {
	idx := &Index{
		Account:     account,
		FakeID:      fakeid,
		Window:      window.String(),
		RunID:       runID,
		GeneratedAt: time.Now(),
		Articles:    make([]ArticleMetadata, 0, len(articles)),
	}
	for _, a := range articles {
		idx.Articles = append(idx.Articles, FromArticle(a, root))
	}
	return idx
}

// Missing lists the requested formats that have no artifact
func (m ArticleMetadata) Missing(formats models.FormatSet) []models.Format {
	var out []models.Format
	for _, f := range formats.Ordered() {
		if _, ok := m.Artifacts[string(f)]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Save writes the index to root as articles.json or articles.yaml
func (idx *Index) Save(root, format string) (string, error) {
	var (
		data []byte
		err  error
		ext  string
	)

	switch format {
	case "", "json":
		data, err = json.MarshalIndent(idx, "", "  ")
		ext = "json"
	case "yaml", "yml":
		data, err = yaml.Marshal(idx)
		ext = "yaml"
	default:
		return "", fmt.Errorf("unsupported metadata format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	store, err := storage.NewManager(root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, IndexBaseName+"."+ext)
	if err := store.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write metadata file: %w", err)
	}
	return path, nil
}

// Load reads the index from root, trying json before yaml. It returns
// nil, nil when neither exists.
func Load(root string) (*Index, error) {
	for _, ext := range []string{"json", "yaml"} {
		data, err := os.ReadFile(filepath.Join(root, IndexBaseName+"."+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file: %w", err)
		}

		var idx Index
		if ext == "json" {
			err = json.Unmarshal(data, &idx)
		} else {
			err = yaml.Unmarshal(data, &idx)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		return &idx, nil
	}
	return nil, nil
}

// GetFormattedDigest returns the digest cut to maxRunes for display
func (m ArticleMetadata) GetFormattedDigest(maxRunes int) string {
	r := []rune(m.Digest)
	if len(r) <= maxRunes || maxRunes < 4 {
		return m.Digest
	}
	return string(r[:maxRunes-3]) + "..."
}
