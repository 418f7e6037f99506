package scraper

import (
	"context"
	"errors"

	"wxexport/pkg/content"
	"wxexport/pkg/models"
)

// brokenFetcher fails one title and returns fixed markup for the rest
type brokenFetcher struct {
	title string
}

func (b *brokenFetcher) Fetch(ctx context.Context, ref models.ArticleRef) (*content.Sanitized, error) {
	if ref.Title == b.title {
		return nil, errors.New("connection reset by peer")
	}
	return &content.Sanitized{HTML: "<html><body><div id=\"js_content\"><p>" + ref.Title + "</p></div></body></html>"}, nil
}
