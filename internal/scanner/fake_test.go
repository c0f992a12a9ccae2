package scanner

import (
	"context"
	"time"

	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/pkg/errors"
)

type fakeElement struct {
	name string
}

func (e *fakeElement) String() string {
	return e.name
}

// fakeBackend is a scripted rendering backend keyed by selector query.
// Elements are named after the query that found them.
type fakeBackend struct {
	url       string
	present   map[string]bool
	attrs     map[string]string
	texts     map[string]string
	errs      map[string][]error
	onClick   map[string]func()
	clicks    []string
	typed     map[string]string
	waits     []string
	loads     []string
	refreshes int
}

var (
	_ browser.Backend = (*fakeBackend)(nil)
	_ browser.Waiter  = (*fakeBackend)(nil)
	_ browser.Typer   = (*fakeBackend)(nil)
)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		url:     "https://9gag.com/hot",
		present: map[string]bool{},
		attrs:   map[string]string{},
		texts:   map[string]string{},
		errs:    map[string][]error{},
		onClick: map[string]func(){},
		typed:   map[string]string{},
	}
}

func (f *fakeBackend) show(sels ...selectors.Selector) {
	for _, sel := range sels {
		f.present[sel.Query] = true
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Load(_ context.Context, url string) error {
	f.loads = append(f.loads, url)
	f.url = url
	return nil
}

func (f *fakeBackend) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

func (f *fakeBackend) Click(_ context.Context, el browser.Element) error {
	f.clicks = append(f.clicks, el.String())
	if fn := f.onClick[el.String()]; fn != nil {
		fn()
	}
	return nil
}

func (f *fakeBackend) Type(_ context.Context, el browser.Element, text string) error {
	f.typed[el.String()] = text
	return nil
}

func (f *fakeBackend) WaitFor(ctx context.Context, sel selectors.Selector, _ time.Duration) ([]browser.Element, error) {
	f.waits = append(f.waits, sel.Query)
	return f.FindAll(ctx, sel)
}

func (f *fakeBackend) CurrentURL() string { return f.url }

func (f *fakeBackend) HTML(context.Context) (string, error) { return "<html></html>", nil }

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) FindOne(ctx context.Context, sel selectors.Selector) (browser.Element, error) {
	if queued := f.errs[sel.Query]; len(queued) > 0 {
		f.errs[sel.Query] = queued[1:]
		return nil, queued[0]
	}
	els, _ := f.FindAll(ctx, sel)
	if len(els) == 0 {
		return nil, errors.NewElementNotFound("fake", sel.String())
	}
	return els[0], nil
}

func (f *fakeBackend) FindAll(_ context.Context, sel selectors.Selector) ([]browser.Element, error) {
	if !f.present[sel.Query] {
		return nil, nil
	}
	return []browser.Element{&fakeElement{name: sel.Query}}, nil
}

func (f *fakeBackend) FindOneIn(ctx context.Context, _ browser.Element, sel selectors.Selector) (browser.Element, error) {
	return f.FindOne(ctx, sel)
}

func (f *fakeBackend) FindAllIn(ctx context.Context, _ browser.Element, sel selectors.Selector) ([]browser.Element, error) {
	return f.FindAll(ctx, sel)
}

func (f *fakeBackend) Attribute(_ context.Context, el browser.Element, name string) (string, error) {
	v, ok := f.attrs[el.String()+"@"+name]
	if !ok {
		return "", errors.NewElementNotFound("fake", "no attribute "+name)
	}
	return v, nil
}

func (f *fakeBackend) Text(_ context.Context, el browser.Element) (string, error) {
	return f.texts[el.String()], nil
}

func newFakeNavigator(f *fakeBackend) *Navigator {
	return NewNavigator(f, selectors.Default(), Options{
		BaseURL:        "https://9gag.com",
		WaitTimeout:    time.Second,
		LocateAttempts: 3,
	})
}
