package scraper

import (
	"context"

	"wxexport/pkg/catalog"
)

// APIClient defines the console API operations the export needs
type APIClient interface {
	catalog.PageLister
	Search(ctx context.Context, name string) (string, error)
}
