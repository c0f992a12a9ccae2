// Package scanner walks a section feed post by post on top of a browsing
// backend: it finds the first real post, opens it, extracts it and follows
// the next-post control.
package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/post"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/throttle"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"
)

const source = "navigator"

// Options tunes waits and retries
type Options struct {
	// BaseURL is the site root used for the home page and section aliases
	BaseURL string
	// WaitTimeout bounds every wait for late-rendered content
	WaitTimeout time.Duration
	// LocateAttempts bounds the stale-reference retries of LocateFirst
	LocateAttempts int
	// SettleDelay lets lazy feed rendering finish before reading a post link
	SettleDelay time.Duration
	// LoginOverlayDelay is how long to wait for the login overlay after a click
	LoginOverlayDelay time.Duration
}

// DefaultOptions returns the timings used against the real site
func DefaultOptions() Options {
	return Options{
		BaseURL:           "https://9gag.com",
		WaitTimeout:       10 * time.Second,
		LocateAttempts:    5,
		SettleDelay:       2 * time.Second,
		LoginOverlayDelay: time.Second,
	}
}

// sectionAliases are feeds reachable by URL without the section menu
var sectionAliases = map[string]bool{"hot": true, "trending": true, "fresh": true}

// Navigator moves a backend around the feed. It is not safe for concurrent
// use, matching the single page a backend holds.
type Navigator struct {
	backend browser.Backend
	catalog *selectors.Catalog
	opts    Options
	log     *logger.Logger
}

// NewNavigator creates a navigator over backend
func NewNavigator(backend browser.Backend, catalog *selectors.Catalog, opts Options) *Navigator {
	if opts.LocateAttempts < 1 {
		opts.LocateAttempts = 1
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Navigator{
		backend: backend,
		catalog: catalog,
		opts:    opts,
		log:     logger.ForScanner().WithField("backend", backend.Name()),
	}
}

// Backend returns the backend the navigator drives
func (n *Navigator) Backend() browser.Backend {
	return n.backend
}

// Home loads the site root
func (n *Navigator) Home(ctx context.Context) error {
	return n.backend.Load(ctx, n.opts.BaseURL)
}

// GoToSection loads a section feed by menu name or URL name. hot, trending
// and fresh are reached directly; other sections are looked up in the menu
// of the current page, first by capitalized text and then by href.
func (n *Navigator) GoToSection(ctx context.Context, name string, fresh bool) error {
	lower := strings.ToLower(strings.TrimSpace(name))
	if sectionAliases[lower] {
		return n.backend.Load(ctx, n.opts.BaseURL+"/"+lower)
	}

	if _, err := n.backend.FindOne(ctx, n.catalog.Navigation.SectionList); err != nil {
		if stderrors.Is(err, errors.ErrElementNotFound) {
			return errors.NewElementNotFound(source, "section menu not found, the window may be too narrow")
		}
		return err
	}

	items, err := n.backend.FindAll(ctx, n.catalog.Navigation.SectionItems)
	if err != nil {
		return err
	}

	href, err := n.matchSection(ctx, items, lower)
	if err != nil {
		return err
	}
	if href == "" {
		return errors.NewInvalidAction(source, fmt.Sprintf("section %q was not found", name))
	}

	target, err := browser.Resolve(n.backend.CurrentURL(), href)
	if err != nil {
		return errors.NewNavigation(source, href, err)
	}
	if fresh {
		target = strings.TrimRight(target, "/") + "/fresh"
	}
	n.log.Debug().Str("section", name).Str("url", target).Msg("Going to section")
	return n.backend.Load(ctx, target)
}

func (n *Navigator) matchSection(ctx context.Context, items []browser.Element, lower string) (string, error) {
	display := helpers.Capitalize(lower)
	for _, item := range items {
		text, err := n.backend.Text(ctx, item)
		if err != nil {
			return "", err
		}
		if strings.Contains(text, display) {
			return n.backend.Attribute(ctx, item, "href")
		}
	}

	for _, item := range items {
		href, err := n.backend.Attribute(ctx, item, "href")
		if err != nil {
			continue
		}
		if href == "/"+lower {
			return href, nil
		}
	}
	return "", nil
}

// LocateFirst returns the URL of the first real post on the current feed,
// skipping a pinned board entry. A stale element refreshes the feed and
// tries again; once the attempts are used up it fails with feed exhausted.
func (n *Navigator) LocateFirst(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= n.opts.LocateAttempts; attempt++ {
		url, err := n.locateOnce(ctx)
		if err == nil {
			n.log.Debug().Str("url", url).Int("attempt", attempt).Msg("Located first post")
			return url, nil
		}
		if !errors.IsRetryable(err) {
			return "", err
		}

		lastErr = err
		n.log.Warn().Err(err).Int("attempt", attempt).Msg("Feed changed while locating first post")
		if attempt == n.opts.LocateAttempts {
			break
		}
		if err := n.backend.Refresh(ctx); err != nil {
			return "", err
		}
	}
	return "", errors.NewFeedExhausted(source, n.opts.LocateAttempts, lastErr)
}

func (n *Navigator) locateOnce(ctx context.Context) (string, error) {
	article, err := n.backend.FindOne(ctx, n.catalog.NthArticle(1))
	if err != nil {
		return "", err
	}

	boards, err := n.backend.FindAllIn(ctx, article, n.catalog.Feed.OpenBoard)
	if err != nil {
		return "", err
	}
	if len(boards) > 0 {
		if article, err = n.backend.FindOne(ctx, n.catalog.NthArticle(2)); err != nil {
			return "", err
		}
	}

	if browser.Renders(n.backend) {
		if err := throttle.Sleep(ctx, n.opts.SettleDelay); err != nil {
			return "", err
		}
	}

	link, err := n.backend.FindOneIn(ctx, article, n.catalog.Feed.ArticleLink)
	if err != nil {
		return "", err
	}
	href, err := n.backend.Attribute(ctx, link, "href")
	if err != nil {
		return "", err
	}
	url, err := browser.Resolve(n.backend.CurrentURL(), href)
	if err != nil {
		return "", errors.NewNavigation(source, href, err)
	}
	return url, nil
}

// OpenPost loads a post page. Rendering backends also wait for the comment
// section before returning.
func (n *Navigator) OpenPost(ctx context.Context, url string) error {
	if err := n.backend.Load(ctx, url); err != nil {
		return err
	}
	if browser.Renders(n.backend) {
		return n.await(ctx, n.catalog.Post.CommentRenderCheck, "comment section")
	}
	return nil
}

// Advance clicks the next-post control and waits until the new post is
// ready: the control is back and, on rendering backends, the comment
// section has appeared.
func (n *Navigator) Advance(ctx context.Context) error {
	next, err := n.backend.FindOne(ctx, n.catalog.Post.NextButton)
	if err != nil {
		return err
	}
	if err := n.backend.Click(ctx, next); err != nil {
		return err
	}

	if err := n.await(ctx, n.catalog.Post.NextButton, "next post button"); err != nil {
		return err
	}
	if browser.Renders(n.backend) {
		return n.await(ctx, n.catalog.Post.CommentRenderCheck, "comment section")
	}
	return nil
}

// ExtractCurrent extracts the post on the current page
func (n *Navigator) ExtractCurrent(ctx context.Context) (*post.Post, error) {
	return post.Extract(ctx, n.backend, n.catalog, n.backend.CurrentURL())
}

func (n *Navigator) await(ctx context.Context, sel selectors.Selector, what string) error {
	els, err := browser.WaitPresent(ctx, n.backend, sel, n.opts.WaitTimeout)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return errors.NewRenderTimeout(source, what, n.opts.WaitTimeout)
	}
	return nil
}
