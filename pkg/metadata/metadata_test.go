package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxexport/pkg/models"
)

func sampleArticles() []models.ArticleRef {
	return []models.ArticleRef{
		{Title: "第一篇", Link: "https://mp.weixin.qq.com/s/a", PublishedDate: "2024-01-15", PublishedAt: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), Digest: "摘要"},
		{Title: "第二篇", Link: "https://mp.weixin.qq.com/s/b", PublishedDate: "2024-01-10"},
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestFromArticleListsArtifacts(t *testing.T) {
	root := t.TempDir()
	ref := sampleArticles()[0]
	touch(t, ref.ArtifactPath(root, models.FormatPDF))

	meta := FromArticle(ref, root)
	assert.Equal(t, map[string]string{"pdf": "PDF/2024-01-15_第一篇.pdf"}, meta.Artifacts)
	assert.Equal(t, []models.Format{models.FormatHTML, models.FormatDOCX}, meta.Missing(models.NewFormatSet(models.AllFormats...)))
}

func TestIndexRoundTripJSONAndYAML(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			root := t.TempDir()
			window, err := models.ParseDateWindow("2024-01-01", "2024-01-31")
			require.NoError(t, err)

			idx := NewIndex("薪火传", "MzA5", window, "run-1", root, sampleArticles())
			idx.Downloaded = 2

			path, err := idx.Save(root, format)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, "articles."+format), path)

			loaded, err := Load(root)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, "薪火传", loaded.Account)
			assert.Equal(t, "run-1", loaded.RunID)
			assert.Equal(t, 2, loaded.Downloaded)
			require.Len(t, loaded.Articles, 2)
			assert.Equal(t, "2024-01-15", loaded.Articles[0].PublishedDate)
			assert.True(t, loaded.Articles[0].PublishedAt.Equal(sampleArticles()[0].PublishedAt))
		})
	}
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	idx := NewIndex("a", "b", nil, "r", t.TempDir(), nil)
	_, err := idx.Save(t.TempDir(), "xml")
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	idx, err := Load(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, idx)
}

func TestGetFormattedDigest(t *testing.T) {
	m := ArticleMetadata{Digest: "一二三四五六七八"}
	assert.Equal(t, "一二三...", m.GetFormattedDigest(6))
	assert.Equal(t, m.Digest, m.GetFormattedDigest(20))
}
