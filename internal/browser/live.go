package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/throttle"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// LiveName is the name of the live backend
const LiveName = "live"

// Messages Chromium uses when a node handle outlived its document
var staleMarkers = []string{
	"could not find node",
	"could not find object",
	"node is detached",
	"does not belong to the document",
	"execution context was destroyed",
	"cannot find context",
}

// LiveElement wraps a rod element
type LiveElement struct {
	el *rod.Element
}

func (e *LiveElement) String() string {
	if e.el == nil {
		return "<nil>"
	}
	return e.el.String()
}

// LiveOptions configures a LiveBackend
type LiveOptions struct {
	// ControlURL connects to an already running browser instead of launching one
	ControlURL string
	// Bin is the browser binary; empty lets the launcher find or download one
	Bin      string
	Headless bool
	// Proxy is passed to the launched browser as --proxy-server
	Proxy string
	// Origin resolves root-relative loads before the first page is loaded
	Origin string
	// Throttle paces loads; nil disables pacing
	Throttle *throttle.Throttle
	// NavigationTimeout bounds a single load
	NavigationTimeout time.Duration
	// ActionTimeout bounds clicks and typing
	ActionTimeout time.Duration
}

// LiveBackend drives a headless Chromium through the DevTools protocol.
// Pages keep rendering after load, so callers use WaitFor before reading
// content that arrives late.
type LiveBackend struct {
	opts LiveOptions
	log  *logger.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	// external is set when attached through ControlURL to a browser we did not start
	external bool

	mu      sync.RWMutex
	lastURL string
}

var (
	_ Backend = (*LiveBackend)(nil)
	_ Waiter  = (*LiveBackend)(nil)
	_ Typer   = (*LiveBackend)(nil)
)

// NewLiveBackend launches (or connects to) a browser and opens a blank page
func NewLiveBackend(ctx context.Context, opts LiveOptions) (*LiveBackend, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}

	b := &LiveBackend{
		opts:    opts,
		log:     logger.ForBackend(LiveName),
		lastURL: opts.Origin,
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		if opts.Proxy != "" {
			l = l.Proxy(opts.Proxy)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errors.NewConfiguration("failed to launch browser", err)
		}
		b.launcher = l
		controlURL = u
		b.log.Debug().Str("control_url", u).Bool("headless", opts.Headless).Msg("Browser launched")
	}

	b.external = opts.ControlURL != ""
	b.browser = rod.New().ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		b.killLauncher()
		return nil, errors.NewConfiguration("failed to connect to browser", err)
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		if !b.external {
			_ = b.browser.Close()
		}
		b.killLauncher()
		return nil, errors.NewConfiguration("failed to open browser page", err)
	}
	b.page = page
	return b, nil
}

// Name implements Backend
func (b *LiveBackend) Name() string {
	return LiveName
}

// CurrentURL implements Backend
func (b *LiveBackend) CurrentURL() string {
	if info, err := b.page.Info(); err == nil && info.URL != "" && info.URL != "about:blank" {
		return info.URL
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastURL
}

// Load implements Backend. It fails when the main document answers with an
// HTTP error status.
func (b *LiveBackend) Load(ctx context.Context, rawURL string) error {
	target, err := Resolve(b.CurrentURL(), rawURL)
	if err != nil {
		return errors.NewNavigation(LiveName, rawURL, err)
	}

	if _, err := b.opts.Throttle.Wait(ctx); err != nil {
		return errors.NewNavigation(LiveName, target, err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.opts.NavigationTimeout)
	defer cancel()
	page := b.page.Context(navCtx)

	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		if e.FrameID != "" && e.FrameID != page.FrameID {
			return false
		}
		status = e.Response.Status
		return true
	})

	b.log.Debug().Str("url", target).Msg("Navigating")
	if err := page.Navigate(target); err != nil {
		return errors.NewNavigation(LiveName, target, err)
	}
	waitDocument()
	if err := page.WaitLoad(); err != nil {
		return errors.NewNavigation(LiveName, target, err)
	}
	if status >= 400 {
		return errors.NewNavigation(LiveName, target, fmt.Errorf("status code %d", status))
	}

	b.mu.Lock()
	b.lastURL = target
	b.mu.Unlock()
	return nil
}

// Refresh implements Backend
func (b *LiveBackend) Refresh(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, b.opts.NavigationTimeout)
	defer cancel()
	page := b.page.Context(navCtx)
	if err := page.Reload(); err != nil {
		return errors.NewNavigation(LiveName, b.CurrentURL(), err)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.NewNavigation(LiveName, b.CurrentURL(), err)
	}
	return nil
}

// Click implements Backend
func (b *LiveBackend) Click(ctx context.Context, el Element) error {
	re, err := b.element(el)
	if err != nil {
		return err
	}
	actCtx, cancel := context.WithTimeout(ctx, b.opts.ActionTimeout)
	defer cancel()
	if err := re.Context(actCtx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return b.wrap(err, "click "+el.String())
	}
	return nil
}

// Type implements Typer
func (b *LiveBackend) Type(ctx context.Context, el Element, text string) error {
	re, err := b.element(el)
	if err != nil {
		return err
	}
	actCtx, cancel := context.WithTimeout(ctx, b.opts.ActionTimeout)
	defer cancel()
	if err := re.Context(actCtx).Input(text); err != nil {
		return b.wrap(err, "type into "+el.String())
	}
	return nil
}

// WaitFor implements Waiter
func (b *LiveBackend) WaitFor(ctx context.Context, sel selectors.Selector, timeout time.Duration) ([]Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	page := b.page.Context(waitCtx)

	var err error
	if sel.Kind == selectors.CSS {
		_, err = page.Element(sel.Query)
	} else {
		_, err = page.ElementX(sel.Query)
	}
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			b.log.Debug().Str("selector", sel.String()).Dur("timeout", timeout).Msg("Wait expired")
			return nil, nil
		}
		return nil, b.wrap(err, "wait for "+sel.String())
	}
	return b.FindAll(ctx, sel)
}

// HTML implements Backend
func (b *LiveBackend) HTML(ctx context.Context) (string, error) {
	html, err := b.page.Context(ctx).HTML()
	if err != nil {
		return "", b.wrap(err, "read page source")
	}
	return html, nil
}

// Close implements Backend. A browser reached through ControlURL keeps
// running; only the page opened on it is closed.
func (b *LiveBackend) Close() error {
	var errs []error
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.browser != nil && !b.external {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.killLauncher()
	return stderrors.Join(errs...)
}

func (b *LiveBackend) killLauncher() {
	if b.launcher == nil {
		return
	}
	b.launcher.Kill()
	b.launcher.Cleanup()
	b.launcher = nil
}

// FindOne implements Querier
func (b *LiveBackend) FindOne(ctx context.Context, sel selectors.Selector) (Element, error) {
	els, err := b.FindAll(ctx, sel)
	return firstOf(LiveName, sel, els, err)
}

// FindAll implements Querier. It does not wait; use WaitFor for late content.
func (b *LiveBackend) FindAll(ctx context.Context, sel selectors.Selector) ([]Element, error) {
	page := b.page.Context(ctx)
	var (
		found rod.Elements
		err   error
	)
	if sel.Kind == selectors.CSS {
		found, err = page.Elements(sel.Query)
	} else {
		found, err = page.ElementsX(sel.Query)
	}
	if err != nil {
		return nil, b.wrap(err, "query "+sel.String())
	}
	return wrapElements(found), nil
}

// FindOneIn implements Querier
func (b *LiveBackend) FindOneIn(ctx context.Context, parent Element, sel selectors.Selector) (Element, error) {
	els, err := b.FindAllIn(ctx, parent, sel)
	return firstOf(LiveName, sel, els, err)
}

// FindAllIn implements Querier
func (b *LiveBackend) FindAllIn(ctx context.Context, parent Element, sel selectors.Selector) ([]Element, error) {
	re, err := b.element(parent)
	if err != nil {
		return nil, err
	}
	re = re.Context(ctx)
	var found rod.Elements
	if sel.Kind == selectors.CSS {
		found, err = re.Elements(sel.Query)
	} else {
		found, err = re.ElementsX(sel.Query)
	}
	if err != nil {
		return nil, b.wrap(err, "query "+sel.String()+" in "+parent.String())
	}
	return wrapElements(found), nil
}

// Attribute implements Querier
func (b *LiveBackend) Attribute(ctx context.Context, el Element, name string) (string, error) {
	re, err := b.element(el)
	if err != nil {
		return "", err
	}
	value, err := re.Context(ctx).Attribute(name)
	if err != nil {
		return "", b.wrap(err, "read attribute "+name)
	}
	if value == nil {
		return "", errors.NewElementNotFound(LiveName, fmt.Sprintf("%s has no %q attribute", el, name))
	}
	return *value, nil
}

// Text implements Querier
func (b *LiveBackend) Text(ctx context.Context, el Element) (string, error) {
	re, err := b.element(el)
	if err != nil {
		return "", err
	}
	text, err := re.Context(ctx).Text()
	if err != nil {
		return "", b.wrap(err, "read text")
	}
	return text, nil
}

func (b *LiveBackend) element(el Element) (*rod.Element, error) {
	le, ok := el.(*LiveElement)
	if !ok || le == nil || le.el == nil {
		return nil, errors.NewInvalidAction(LiveName, fmt.Sprintf("element %v does not belong to the live backend", el))
	}
	return le.el, nil
}

func (b *LiveBackend) wrap(err error, what string) error {
	if IsStale(err) {
		return errors.NewStaleReference(LiveName, err)
	}
	return errors.New(errors.ErrorTypeNavigation, LiveName, "failed to "+what, err)
}

func wrapElements(found rod.Elements) []Element {
	els := make([]Element, 0, len(found))
	for _, el := range found {
		els = append(els, &LiveElement{el: el})
	}
	return els
}

// IsStale reports whether err means an element handle outlived its document
func IsStale(err error) bool {
	var objErr *rod.ObjectNotFoundError
	if stderrors.As(err, &objErr) {
		return true
	}
	var cdpErr *cdp.Error
	if stderrors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message + " " + cdpErr.Data)
		for _, marker := range staleMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}
