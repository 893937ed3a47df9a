// Package pageset describes the pages a benchmark measures.
package pageset

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/net/html"
)

const fileScheme = "file://"

// Page is a single page to measure.
type Page struct {
	// URL is either an absolute http(s) URL or a file:// URL relative to the
	// page set's base directory.
	URL  string
	Name string

	// RequiredElementIDs are ids that must be present in a local HTML page
	// before it is worth measuring.
	RequiredElementIDs []string

	baseDir string
}

// DisplayName returns the page name or its URL when it has no name.
func (p *Page) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.URL
}

// IsLocal returns true if the page is served from the local file system.
func (p *Page) IsLocal() bool {
	return strings.HasPrefix(p.URL, fileScheme)
}

// FilePath returns the local path of a file:// page.
func (p *Page) FilePath() string {
	path := filepath.FromSlash(strings.TrimPrefix(p.URL, fileScheme))
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.baseDir, path)
}

// ResolvedURL returns the URL the browser should navigate to.
func (p *Page) ResolvedURL() string {
	if !p.IsLocal() {
		return p.URL
	}
	path := filepath.ToSlash(p.FilePath())
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

// PageSet is an ordered list of pages sharing a base directory.
type PageSet struct {
	BaseDir string
	Pages   []*Page
}

// New returns a page set whose relative file:// pages resolve against baseDir.
func New(baseDir string, pages ...Page) *PageSet {
	ps := &PageSet{BaseDir: baseDir}
	for _, p := range pages {
		p := p
		p.baseDir = baseDir
		ps.Pages = append(ps.Pages, &p)
	}
	return ps
}

// Validate checks that every local page exists in fs and carries the element
// ids it requires.
func (ps *PageSet) Validate(fs afero.Fs) error {
	if len(ps.Pages) == 0 {
		return errors.New("page set has no pages")
	}
	for _, p := range ps.Pages {
		if !p.IsLocal() {
			continue
		}
		if err := validateLocalPage(fs, p); err != nil {
			return fmt.Errorf("validating page %q: %w", p.DisplayName(), err)
		}
	}
	return nil
}

func validateLocalPage(fs afero.Fs, p *Page) error {
	path := p.FilePath()
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("checking %q: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("file %q does not exist", path)
	}
	if len(p.RequiredElementIDs) == 0 {
		return nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	doc, err := html.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	ids := elementIDs(doc)

	var missing []string
	for _, id := range p.RequiredElementIDs {
		if _, ok := ids[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing element ids in %q: %s", path, strings.Join(missing, ", "))
	}

	return nil
}

func elementIDs(n *html.Node) map[string]struct{} {
	ids := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" {
					ids[a.Val] = struct{}{}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return ids
}
