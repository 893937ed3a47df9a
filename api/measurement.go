package api

import (
	"context"

	"github.com/browserbench/browserbench/pageset"
)

// PageMeasurement measures pages once the harness has navigated to them.
type PageMeasurement interface {
	CustomizeBrowserOptions(opts BrowserOptions)
	MeasurePage(ctx context.Context, page *pageset.Page, tab Tab, results PageResults) error
}
