package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
	"golang.org/x/image/webp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"wxexport/pkg/content"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
)

const (
	// ContentSelector marks the article body in WeChat markup
	ContentSelector = "#js_content"

	// FallbackNotice is written when the body container is missing
	FallbackNotice = "无法解析文章内容结构，仅保存纯文本。"

	// DefaultImageWidth is the maximum picture width in inches
	DefaultImageWidth = 6.0

	pixelsPerInch = 96.0
)

// DocWriter is the subset of a word-processor document the builder needs
type DocWriter interface {
	Heading(text string, level uint) error
	Paragraph(text string)
	Picture(data []byte, widthIn, heightIn float64) error
	Save(path string) error
}

// ImageSource fetches remote images for embedding
type ImageSource interface {
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}

// DocxBuilder assembles a Word document from sanitized markup
type DocxBuilder struct {
	images   ImageSource
	maxWidth float64
	newDoc   func() (DocWriter, error)
	logger   logger.Logger
}

// NewDocxBuilder creates a builder. images may be nil, in which case only
// data URIs are embedded.
func NewDocxBuilder(images ImageSource, maxWidth float64, log logger.Logger) *DocxBuilder {
	if maxWidth <= 0 {
		maxWidth = DefaultImageWidth
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &DocxBuilder{images: images, maxWidth: maxWidth, newDoc: newGodocx, logger: log}
}

// Build writes the document for ref to path
func (b *DocxBuilder) Build(ctx context.Context, ref models.ArticleRef, markup, path string) error {
	doc, err := b.newDoc()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if err := b.fill(ctx, doc, ref, markup); err != nil {
		return err
	}
	return doc.Save(path)
}

func (b *DocxBuilder) fill(ctx context.Context, doc DocWriter, ref models.ArticleRef, markup string) error {
	if err := doc.Heading(ref.Title, 0); err != nil {
		return fmt.Errorf("title heading: %w", err)
	}
	doc.Paragraph("发布日期: " + ref.PublishedDate)

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}

	body := parsed.Find(ContentSelector).First()
	if body.Length() == 0 {
		doc.Paragraph(FallbackNotice)
		doc.Paragraph(strings.TrimSpace(parsed.Text()))
		return nil
	}

	log := b.logger.WithField("title", ref.Title)
	for c := body.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		b.walk(ctx, doc, c, log)
	}
	return nil
}

// walk emits nodes depth first. Block elements contribute their whole
// text once; only images are searched for beneath them.
func (b *DocxBuilder) walk(ctx context.Context, doc DocWriter, n *html.Node, log logger.Logger) {
	if n.Type != html.ElementNode {
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if text := nodeText(n); text != "" {
			level := uint(n.Data[1] - '0')
			if err := doc.Heading(text, level); err != nil {
				log.WithError(err).Debug("heading skipped")
			}
		}
		b.embedNested(ctx, doc, n, log)
	case atom.P, atom.Li, atom.Blockquote, atom.Pre:
		if text := nodeText(n); text != "" {
			doc.Paragraph(text)
		}
		b.embedNested(ctx, doc, n, log)
	case atom.Img:
		b.picture(ctx, doc, n, log)
	case atom.Script, atom.Style:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(ctx, doc, c, log)
		}
	}
}

// embedNested embeds every image nested under n
func (b *DocxBuilder) embedNested(ctx context.Context, doc DocWriter, n *html.Node, log logger.Logger) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == atom.Img {
			b.picture(ctx, doc, c, log)
			continue
		}
		b.embedNested(ctx, doc, c, log)
	}
}

func (b *DocxBuilder) picture(ctx context.Context, doc DocWriter, n *html.Node, log logger.Logger) {
	src := content.EffectiveSource(goquery.NewDocumentFromNode(n).Selection)
	if src == "" {
		return
	}

	data, err := b.imageBytes(ctx, src)
	if err != nil {
		log.WithError(err).DebugWithFields("image skipped", map[string]interface{}{"src": truncate(src, 80)})
		return
	}

	data, w, h, err := normalizeImage(data)
	if err != nil {
		log.WithError(err).DebugWithFields("image skipped", map[string]interface{}{"src": truncate(src, 80)})
		return
	}

	width, height := scale(w, h, b.maxWidth)
	if err := doc.Picture(data, width, height); err != nil {
		log.WithError(err).Debug("image embed failed")
	}
}

func (b *DocxBuilder) imageBytes(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		data, _, err := content.DecodeDataURI(src)
		return data, err
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return nil, fmt.Errorf("unsupported image source")
	}
	if b.images == nil {
		return nil, fmt.Errorf("no image source configured")
	}
	data, _, err := b.images.FetchImage(ctx, src)
	return data, err
}

// normalizeImage returns bytes Word can embed along with pixel size.
// WebP is re-encoded as PNG.
func normalizeImage(data []byte) ([]byte, int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return data, cfg.Width, cfg.Height, nil
	}

	img, werr := webp.Decode(bytes.NewReader(data))
	if werr != nil {
		return nil, 0, 0, fmt.Errorf("unrecognised image format: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("re-encode webp: %w", err)
	}
	bounds := img.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// scale converts pixels to inches, capping the width at maxWidth and
// keeping the aspect ratio.
func scale(w, h int, maxWidth float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxWidth, maxWidth
	}
	width := float64(w) / pixelsPerInch
	if width > maxWidth {
		width = maxWidth
	}
	return width, width * float64(h) / float64(w)
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.TrimSpace(sb.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// godocxWriter adapts gomutex/godocx
type godocxWriter struct {
	doc    *docx.RootDoc
	tmpDir string
	seq    int
}

func newGodocx() (DocWriter, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, err
	}
	return &godocxWriter{doc: doc}, nil
}

func (g *godocxWriter) Heading(text string, level uint) error {
	_, err := g.doc.AddHeading(text, level)
	return err
}

func (g *godocxWriter) Paragraph(text string) {
	g.doc.AddParagraph(text)
}

// Picture stages the image in a temp file since godocx embeds from disk
func (g *godocxWriter) Picture(data []byte, widthIn, heightIn float64) error {
	if g.tmpDir == "" {
		dir, err := os.MkdirTemp("", "wxexport-docx-*")
		if err != nil {
			return err
		}
		g.tmpDir = dir
	}
	g.seq++

	ext := ".png"
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		switch format {
		case "jpeg":
			ext = ".jpg"
		case "gif":
			ext = ".gif"
		}
	}
	p := filepath.Join(g.tmpDir, fmt.Sprintf("img%03d%s", g.seq, ext))
	if err := os.WriteFile(p, data, 0600); err != nil {
		return err
	}
	_, err := g.doc.AddPicture(p, units.Inch(widthIn), units.Inch(heightIn))
	return err
}

func (g *godocxWriter) Save(path string) error {
	if g.tmpDir != "" {
		defer os.RemoveAll(g.tmpDir)
	}
	return g.doc.SaveTo(path)
}
