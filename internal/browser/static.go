package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/throttle"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"
	"sjsage522/feedscanner/services/cache"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// StaticName is the name of the static backend
const StaticName = "static"

// StaticElement is a node in a parsed page
type StaticElement struct {
	node *html.Node
}

func (e *StaticElement) String() string {
	if e.node == nil {
		return "<nil>"
	}
	return "<" + e.node.Data + ">"
}

// Node exposes the underlying parse tree node
func (e *StaticElement) Node() *html.Node {
	return e.node
}

// StaticPage is an immutable parsed page. It answers XPath queries through
// htmlquery and CSS queries through goquery.
type StaticPage struct {
	root *html.Node
	url  string
}

// ParsePage parses r as the page found at pageURL
func ParsePage(r io.Reader, pageURL string) (*StaticPage, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &StaticPage{root: root, url: pageURL}, nil
}

// URL is the address the page was loaded from
func (p *StaticPage) URL() string {
	return p.url
}

// HTML renders the page back to markup
func (p *StaticPage) HTML() string {
	return htmlquery.OutputHTML(p.root, true)
}

// FindOne implements Querier
func (p *StaticPage) FindOne(ctx context.Context, sel selectors.Selector) (Element, error) {
	els, err := p.FindAll(ctx, sel)
	return firstOf(StaticName, sel, els, err)
}

// FindAll implements Querier
func (p *StaticPage) FindAll(_ context.Context, sel selectors.Selector) ([]Element, error) {
	return query(p.root, sel)
}

// FindOneIn implements Querier
func (p *StaticPage) FindOneIn(ctx context.Context, parent Element, sel selectors.Selector) (Element, error) {
	els, err := p.FindAllIn(ctx, parent, sel)
	return firstOf(StaticName, sel, els, err)
}

// FindAllIn implements Querier
func (p *StaticPage) FindAllIn(_ context.Context, parent Element, sel selectors.Selector) ([]Element, error) {
	n, err := staticNode(parent)
	if err != nil {
		return nil, err
	}
	return query(n, sel)
}

// Attribute implements Querier
func (p *StaticPage) Attribute(_ context.Context, el Element, name string) (string, error) {
	n, err := staticNode(el)
	if err != nil {
		return "", err
	}
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val, nil
		}
	}
	return "", errors.NewElementNotFound(StaticName, fmt.Sprintf("%s has no %q attribute", el, name))
}

// Text implements Querier
func (p *StaticPage) Text(_ context.Context, el Element) (string, error) {
	n, err := staticNode(el)
	if err != nil {
		return "", err
	}
	return htmlquery.InnerText(n), nil
}

func query(top *html.Node, sel selectors.Selector) ([]Element, error) {
	var nodes []*html.Node
	switch sel.Kind {
	case selectors.CSS:
		nodes = goquery.NewDocumentFromNode(top).Find(sel.Query).Nodes
	default:
		var err error
		nodes, err = htmlquery.QueryAll(top, sel.Query)
		if err != nil {
			return nil, errors.NewConfiguration("invalid xpath "+strconv.Quote(sel.Query), err)
		}
	}

	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &StaticElement{node: n})
	}
	return els, nil
}

func staticNode(el Element) (*html.Node, error) {
	se, ok := el.(*StaticElement)
	if !ok || se == nil || se.node == nil {
		return nil, errors.NewInvalidAction(StaticName, fmt.Sprintf("element %v does not belong to the static backend", el))
	}
	return se.node, nil
}

// StaticOptions configures a StaticBackend
type StaticOptions struct {
	// Client performs the requests; nil uses a default client
	Client *http.Client
	// Throttle paces loads; nil disables pacing
	Throttle *throttle.Throttle
	// Origin resolves root-relative loads before the first page is loaded
	Origin string
	// Cache and BlockTime enable the rate-limit guard
	Cache     cache.CacheService
	BlockTime time.Duration
}

// StaticBackend loads pages over HTTP and queries the parsed tree. Click
// follows the element's href; there is no script execution.
type StaticBackend struct {
	opts StaticOptions
	log  *logger.Logger

	mu   sync.RWMutex
	page *StaticPage
}

var _ Backend = (*StaticBackend)(nil)

// NewStaticBackend creates a static backend
func NewStaticBackend(opts StaticOptions) *StaticBackend {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &StaticBackend{
		opts: opts,
		log:  logger.ForBackend(StaticName),
	}
}

// Name implements Backend
func (b *StaticBackend) Name() string {
	return StaticName
}

func (b *StaticBackend) current() (*StaticPage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.page == nil {
		return nil, errors.NewInvalidAction(StaticName, "no page loaded")
	}
	return b.page, nil
}

// Page returns the current parsed page, or nil before the first load
func (b *StaticBackend) Page() *StaticPage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.page
}

// CurrentURL implements Backend
func (b *StaticBackend) CurrentURL() string {
	if p := b.Page(); p != nil {
		return p.url
	}
	return b.opts.Origin
}

func (b *StaticBackend) rateLimitKey(target string) string {
	return "feedscanner:ratelimit:" + Origin(target)
}

// Load implements Backend. The current page is replaced only after the new
// one has been fetched and parsed.
func (b *StaticBackend) Load(ctx context.Context, rawURL string) error {
	target, err := Resolve(b.CurrentURL(), rawURL)
	if err != nil {
		return errors.NewNavigation(StaticName, rawURL, err)
	}

	if _, err := b.opts.Throttle.Wait(ctx); err != nil {
		return errors.NewNavigation(StaticName, target, err)
	}

	key := b.rateLimitKey(target)
	if b.opts.Cache != nil {
		if _, err := b.opts.Cache.Get(key); err == nil {
			return errors.NewRateLimit(StaticName, b.opts.BlockTime)
		}
	}

	b.log.Debug().Str("url", target).Msg("Fetching page")
	result, err := helpers.FetchWithRandomHeaders(ctx, b.opts.Client, target)
	if err != nil {
		var statusErr *helpers.StatusError
		if stderrors.As(err, &statusErr) && statusErr.RateLimited() {
			b.block(key)
			return errors.NewRateLimit(StaticName, b.opts.BlockTime)
		}
		return errors.NewNavigation(StaticName, target, err)
	}

	page, err := ParsePage(result.Body, result.URL)
	if err != nil {
		return errors.NewNavigation(StaticName, target, err)
	}

	b.mu.Lock()
	b.page = page
	b.mu.Unlock()
	return nil
}

func (b *StaticBackend) block(key string) {
	if b.opts.Cache == nil || b.opts.BlockTime <= 0 {
		return
	}
	value := []byte(strconv.Itoa(int(b.opts.BlockTime / time.Second)))
	if err := b.opts.Cache.Set(key, value, b.opts.BlockTime); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("Failed to store rate limit block")
		return
	}
	b.log.Warn().Dur("block_time", b.opts.BlockTime).Msg("Rate limited, blocking further requests")
}

// Refresh implements Backend
func (b *StaticBackend) Refresh(ctx context.Context) error {
	page, err := b.current()
	if err != nil {
		return err
	}
	return b.Load(ctx, page.url)
}

// Click implements Backend by following the element's href
func (b *StaticBackend) Click(ctx context.Context, el Element) error {
	page, err := b.current()
	if err != nil {
		return err
	}
	href, err := page.Attribute(ctx, el, "href")
	if err != nil {
		return errors.NewInvalidAction(StaticName, fmt.Sprintf("%s is not a link and cannot be clicked without scripts", el))
	}
	return b.Load(ctx, href)
}

// HTML implements Backend
func (b *StaticBackend) HTML(context.Context) (string, error) {
	page, err := b.current()
	if err != nil {
		return "", err
	}
	return page.HTML(), nil
}

// Close implements Backend
func (b *StaticBackend) Close() error {
	b.opts.Client.CloseIdleConnections()
	return nil
}

// FindOne implements Querier
func (b *StaticBackend) FindOne(ctx context.Context, sel selectors.Selector) (Element, error) {
	page, err := b.current()
	if err != nil {
		return nil, err
	}
	return page.FindOne(ctx, sel)
}

// FindAll implements Querier
func (b *StaticBackend) FindAll(ctx context.Context, sel selectors.Selector) ([]Element, error) {
	page, err := b.current()
	if err != nil {
		return nil, err
	}
	return page.FindAll(ctx, sel)
}

// FindOneIn implements Querier
func (b *StaticBackend) FindOneIn(ctx context.Context, parent Element, sel selectors.Selector) (Element, error) {
	page, err := b.current()
	if err != nil {
		return nil, err
	}
	return page.FindOneIn(ctx, parent, sel)
}

// FindAllIn implements Querier
func (b *StaticBackend) FindAllIn(ctx context.Context, parent Element, sel selectors.Selector) ([]Element, error) {
	page, err := b.current()
	if err != nil {
		return nil, err
	}
	return page.FindAllIn(ctx, parent, sel)
}

// Attribute implements Querier
func (b *StaticBackend) Attribute(ctx context.Context, el Element, name string) (string, error) {
	page, err := b.current()
	if err != nil {
		return "", err
	}
	return page.Attribute(ctx, el, name)
}

// Text implements Querier
func (b *StaticBackend) Text(ctx context.Context, el Element) (string, error) {
	page, err := b.current()
	if err != nil {
		return "", err
	}
	return page.Text(ctx, el)
}
