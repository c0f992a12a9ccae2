// Package browser provides the two page-browsing backends the scanner runs
// on: a static one that fetches and parses HTML, and a live one that drives a
// headless Chromium. Navigation and extraction code only sees the interfaces
// declared here.
package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/pkg/errors"
)

// Element is an opaque handle to a node on the currently loaded page. A live
// handle may go stale after the page changes.
type Element interface {
	String() string
}

// Querier reads elements from the currently loaded page
type Querier interface {
	// FindOne returns the first match or an element-not-found error
	FindOne(ctx context.Context, sel selectors.Selector) (Element, error)
	// FindAll returns every match in document order, possibly none
	FindAll(ctx context.Context, sel selectors.Selector) ([]Element, error)
	// FindOneIn is FindOne evaluated relative to parent
	FindOneIn(ctx context.Context, parent Element, sel selectors.Selector) (Element, error)
	// FindAllIn is FindAll evaluated relative to parent
	FindAllIn(ctx context.Context, parent Element, sel selectors.Selector) ([]Element, error)
	// Attribute returns the named attribute or an element-not-found error when absent
	Attribute(ctx context.Context, el Element, name string) (string, error)
	// Text returns the element's text content
	Text(ctx context.Context, el Element) (string, error)
}

// Backend is a page-browsing engine that holds exactly one current page
type Backend interface {
	Querier

	// Name identifies the backend in logs and errors
	Name() string
	// Load navigates to url. Root-relative urls resolve against the current origin.
	Load(ctx context.Context, url string) error
	// Refresh reloads the current page
	Refresh(ctx context.Context) error
	// Click activates el. The static backend follows the element's href.
	Click(ctx context.Context, el Element) error
	// CurrentURL is the address of the current page
	CurrentURL() string
	// HTML returns the current page source
	HTML(ctx context.Context) (string, error)
	// Close releases the backend's resources
	Close() error
}

// Waiter is implemented by backends whose pages keep rendering after load
type Waiter interface {
	// WaitFor polls until sel matches or timeout expires. An expired wait
	// returns an empty slice and no error.
	WaitFor(ctx context.Context, sel selectors.Selector, timeout time.Duration) ([]Element, error)
}

// Typer is implemented by backends that can type into form fields
type Typer interface {
	Type(ctx context.Context, el Element, text string) error
}

// WaitPresent waits for sel on backends that render asynchronously and
// queries once on the rest. An empty result means the element never appeared.
func WaitPresent(ctx context.Context, q Querier, sel selectors.Selector, timeout time.Duration) ([]Element, error) {
	if w, ok := q.(Waiter); ok {
		return w.WaitFor(ctx, sel, timeout)
	}
	return q.FindAll(ctx, sel)
}

// Renders reports whether q renders asynchronously after a load
func Renders(q Querier) bool {
	_, ok := q.(Waiter)
	return ok
}

// Resolve resolves ref against base. Root-relative refs keep base's origin.
func Resolve(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !b.IsAbs() {
		return "", errors.NewInvalidAction("browser", "cannot resolve "+ref+" without a loaded page or origin")
	}
	return b.ResolveReference(r).String(), nil
}

// Origin returns scheme://host of rawURL
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func notFound(source string, sel selectors.Selector) error {
	return errors.NewElementNotFound(source, "no element matches "+sel.String())
}

func firstOf(source string, sel selectors.Selector, els []Element, err error) (Element, error) {
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, notFound(source, sel)
	}
	return els[0], nil
}
