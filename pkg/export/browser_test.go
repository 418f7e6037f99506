package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/logger"
)

type fakeBrowser struct {
	fail     error
	delay    time.Duration
	closed   atomic.Bool
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
	urls     []string
}

func (b *fakeBrowser) PrintPDF(ctx context.Context, pageURL string) ([]byte, error) {
	if b.inFlight != nil {
		n := b.inFlight.Add(1)
		defer b.inFlight.Add(-1)
		for {
			seen := b.maxSeen.Load()
			if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.urls = append(b.urls, pageURL)
	if b.fail != nil {
		return nil, b.fail
	}
	return []byte("%PDF-1.4"), nil
}

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	return nil
}

// launcher hands out browsers from a factory and remembers each one
type launcher struct {
	mu       sync.Mutex
	browsers []*fakeBrowser
	next     func() *fakeBrowser
	err      error
}

func (l *launcher) launch(ctx context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	b := l.next()
	l.browsers = append(l.browsers, b)
	return b, nil
}

func writeHTML(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a.html")
	require.NoError(t, os.WriteFile(p, []byte("<html></html>"), 0644))
	return p
}

func TestBrowserLaunchesLazilyAndReuses(t *testing.T) {
	l := &launcher{next: func() *fakeBrowser { return &fakeBrowser{} }}
	m := NewBrowserManager(l.launch, time.Second, logger.NewTestLogger())
	assert.Equal(t, 0, m.Launches())

	htmlPath := writeHTML(t)
	for i := 0; i < 3; i++ {
		pdf, err := m.RenderPDF(context.Background(), htmlPath)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(pdf))
	}

	assert.Equal(t, 1, m.Launches())
	require.Len(t, l.browsers, 1)
	assert.True(t, strings.HasPrefix(l.browsers[0].urls[0], "file://"))
	assert.True(t, strings.HasSuffix(l.browsers[0].urls[0], "/a.html"))

	require.NoError(t, m.Close())
	assert.True(t, l.browsers[0].closed.Load())
}

func TestBrowserDiscardedAfterFailure(t *testing.T) {
	calls := 0
	l := &launcher{next: func() *fakeBrowser {
		calls++
		if calls == 1 {
			return &fakeBrowser{fail: errors.New("target crashed")}
		}
		return &fakeBrowser{}
	}}
	m := NewBrowserManager(l.launch, time.Second, logger.NewTestLogger())
	htmlPath := writeHTML(t)

	_, err := m.RenderPDF(context.Background(), htmlPath)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeRender))
	assert.True(t, l.browsers[0].closed.Load(), "failed browser must be closed")

	_, err = m.RenderPDF(context.Background(), htmlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Launches())
}

func TestBrowserLaunchFailure(t *testing.T) {
	l := &launcher{err: errors.New("chrome not found")}
	m := NewBrowserManager(l.launch, time.Second, logger.NewTestLogger())

	_, err := m.RenderPDF(context.Background(), writeHTML(t))
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeRender))
	assert.Equal(t, 0, m.Launches())
}

func TestBrowserSerializesRenders(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	l := &launcher{next: func() *fakeBrowser {
		return &fakeBrowser{delay: 5 * time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen}
	}}
	m := NewBrowserManager(l.launch, time.Second, logger.NewTestLogger())
	htmlPath := writeHTML(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RenderPDF(context.Background(), htmlPath)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 1, m.Launches())
}

func TestCloseWithoutBrowser(t *testing.T) {
	m := NewBrowserManager(func(context.Context) (Browser, error) { return nil, errors.New("unused") }, 0, logger.NewTestLogger())
	assert.NoError(t, m.Close())
}
