package export

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wxexport/pkg/content"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
	"wxexport/pkg/storage"
)

var (
	errNoRenderer = errors.New("no pdf renderer configured")
	errNoBuilder  = errors.New("no docx builder configured")
	errNoContent  = errors.New("no content to write")
)

// PDFRenderer prints a local HTML file to PDF bytes
type PDFRenderer interface {
	RenderPDF(ctx context.Context, htmlPath string) ([]byte, error)
}

// DocumentBuilder writes a Word document for an article
type DocumentBuilder interface {
	Build(ctx context.Context, ref models.ArticleRef, markup, path string) error
}

// Materializer turns a sanitized article into files on disk
type Materializer struct {
	pdf    PDFRenderer
	docx   DocumentBuilder
	sink   events.Sink
	logger logger.Logger

	// htmlDir guards the HTML directory: writers share it, removal of an
	// intermediate file (and of the directory once empty) is exclusive
	htmlDir sync.RWMutex
}

// MaterializerOption configures a Materializer
type MaterializerOption func(*Materializer)

// WithSink sets the progress sink
func WithSink(s events.Sink) MaterializerOption {
	return func(m *Materializer) { m.sink = s }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) MaterializerOption {
	return func(m *Materializer) { m.logger = l }
}

// NewMaterializer creates a materializer. Either renderer may be nil, in
// which case requesting that format always fails.
func NewMaterializer(pdf PDFRenderer, docx DocumentBuilder, opts ...MaterializerOption) *Materializer {
	m := &Materializer{pdf: pdf, docx: docx}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.GetLogger()
	}
	m.logger = m.logger.WithField("component", "materializer")
	if m.sink == nil {
		m.sink = events.LogSink(m.logger)
	}
	return m
}

// Satisfied reports whether every requested artifact for ref already exists
func (m *Materializer) Satisfied(ref models.ArticleRef, outputRoot string, formats models.FormatSet) bool {
	if len(formats) == 0 {
		return false
	}
	for _, f := range formats.Ordered() {
		if !storage.Exists(ref.ArtifactPath(outputRoot, f)) {
			return false
		}
	}
	return true
}

// Materialize writes each requested format for ref, html then pdf then
// docx. An artifact already on disk is left alone and counts as done.
// It returns true when at least one requested artifact exists afterwards.
func (m *Materializer) Materialize(ctx context.Context, ref models.ArticleRef, sanitized *content.Sanitized, outputRoot string, formats models.FormatSet) bool {
	log := m.logger.WithField("title", ref.Title)

	store, err := storage.NewManager(outputRoot)
	if err != nil {
		log.WithError(err).Error("output root unavailable")
		return false
	}

	htmlPath := store.Path(ref, models.FormatHTML)
	pdfPath := store.Path(ref, models.FormatPDF)
	docxPath := store.Path(ref, models.FormatDOCX)

	wantHTML := formats.Has(models.FormatHTML)
	wantPDF := formats.Has(models.FormatPDF)
	needPDF := wantPDF && !store.Exists(pdfPath)

	// html is written for its own sake or as the page the browser loads
	intermediate := false
	var htmlErr error
	if wantHTML || needPDF {
		switch {
		case store.Exists(htmlPath):
			if wantHTML {
				m.skipped(ref, models.FormatHTML)
			}
		case sanitized == nil:
			htmlErr = errNoContent
			log.Warn("no content to write")
		default:
			m.htmlDir.RLock()
			htmlErr = store.WriteFile(htmlPath, []byte(sanitized.HTML))
			m.htmlDir.RUnlock()
			if htmlErr != nil {
				if wantHTML {
					m.failed(ref, models.FormatHTML, htmlErr)
				}
			} else {
				intermediate = !wantHTML
				log.DebugWithFields("html written", map[string]interface{}{"path": htmlPath})
			}
		}
	}

	if wantPDF {
		switch {
		case !needPDF:
			m.skipped(ref, models.FormatPDF)
		case store.Exists(htmlPath):
			if err := m.renderPDF(ctx, store, htmlPath, pdfPath); err != nil {
				m.failed(ref, models.FormatPDF, err)
			} else {
				log.DebugWithFields("pdf written", map[string]interface{}{"path": pdfPath})
			}
		default:
			if htmlErr == nil {
				htmlErr = errNoContent
			}
			m.failed(ref, models.FormatPDF, fmt.Errorf("page for printing unavailable: %w", htmlErr))
		}
		if intermediate {
			m.htmlDir.Lock()
			err := store.Remove(htmlPath)
			m.htmlDir.Unlock()
			if err != nil {
				log.WithError(err).Warn("failed to remove intermediate html")
			}
		}
	}

	if formats.Has(models.FormatDOCX) {
		switch {
		case store.Exists(docxPath):
			m.skipped(ref, models.FormatDOCX)
		case sanitized == nil:
		case m.docx == nil:
			m.failed(ref, models.FormatDOCX, errNoBuilder)
		default:
			err := store.Commit(docxPath, func(tmp string) error {
				return m.docx.Build(ctx, ref, sanitized.HTML, tmp)
			})
			if err != nil {
				m.failed(ref, models.FormatDOCX, err)
			} else {
				log.DebugWithFields("docx written", map[string]interface{}{"path": docxPath})
			}
		}
	}

	for _, f := range formats.Ordered() {
		if store.Exists(store.Path(ref, f)) {
			return true
		}
	}
	return false
}

func (m *Materializer) renderPDF(ctx context.Context, store *storage.Manager, htmlPath, pdfPath string) error {
	if m.pdf == nil {
		return errNoRenderer
	}
	data, err := m.pdf.RenderPDF(ctx, htmlPath)
	if err != nil {
		return err
	}
	return store.WriteFile(pdfPath, data)
}

func (m *Materializer) skipped(ref models.ArticleRef, f models.Format) {
	events.Emit(m.sink, events.Event{Kind: events.FormatSkipped, Title: ref.Title, Format: string(f)})
}

func (m *Materializer) failed(ref models.ArticleRef, f models.Format, err error) {
	events.Emit(m.sink, events.Event{Kind: events.ArticleFailed, Title: ref.Title, Format: string(f), Err: err})
}
