package jsvm

import (
	"context"
	"sync"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/log"
)

// Browser opens jsvm pages.
type Browser struct {
	logger     *log.Logger
	onNavigate NavigateFunc

	mu    sync.Mutex
	pages []*Page
}

// NewBrowser returns a Browser whose pages call onNavigate after each
// navigation.
func NewBrowser(logger *log.Logger, onNavigate NavigateFunc) *Browser {
	return &Browser{logger: logger, onNavigate: onNavigate}
}

// NewTab opens a blank page.
func (b *Browser) NewTab(context.Context) (api.Tab, error) {
	p, err := New(b.logger)
	if err != nil {
		return nil, err
	}
	p.onNavigate = b.onNavigate

	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()

	return p, nil
}

// Pages returns the pages opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Page(nil), b.pages...)
}

// Version identifies the in-process browser.
func (b *Browser) Version() string {
	return "jsvm"
}

// Close closes every page.
func (b *Browser) Close() error {
	for _, p := range b.Pages() {
		_ = p.Close(context.Background())
	}
	return nil
}
