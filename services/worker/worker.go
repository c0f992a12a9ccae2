// Package worker runs scan rounds and hands every post to the configured
// sinks: the stream publisher, the SQLite archive and an optional printer.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/post"
	"sjsage522/feedscanner/internal/scanner"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/services/publisher"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PublishKey is the stream field posts are published under
const PublishKey = "b64_posts"

// PostStore archives posts
type PostStore interface {
	Save(ctx context.Context, runID string, p *post.Post) error
}

// Options selects what a round scans
type Options struct {
	Section  string
	Fresh    bool
	MaxPosts int
	// Interval between rounds; zero runs a single round
	Interval time.Duration
}

// Worker scans a section and forwards the posts
type Worker struct {
	session   *scanner.Session
	publisher publisher.Publisher
	store     PostStore
	out       io.Writer
	logger    helpers.LoggerInterface
	opts      Options
}

// NewWorker creates a worker. pub, store and out are optional sinks.
func NewWorker(
	session *scanner.Session,
	pub publisher.Publisher,
	store PostStore,
	out io.Writer,
	logger helpers.LoggerInterface,
	opts Options,
) *Worker {
	if opts.Section == "" {
		opts.Section = "hot"
	}
	return &Worker{
		session:   session,
		publisher: pub,
		store:     store,
		out:       out,
		logger:    logger,
		opts:      opts,
	}
}

// Start runs rounds until ctx is cancelled. With a zero interval it runs one
// round and returns its error.
func (w *Worker) Start(ctx context.Context) error {
	for {
		start := time.Now()
		n, err := w.RunRound(ctx)
		if logger.IsDebugEnabled() {
			w.logger.LogInfo("Scan round finished: %d posts in %s", n, time.Since(start))
		}
		if w.opts.Interval <= 0 {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.Interval):
		}
	}
}

// RunRound scans one batch of posts from the configured section and returns
// how many reached the sinks. A scan failure ends the round; sink failures
// are logged and the round goes on.
func (w *Worker) RunRound(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	source := "scan:" + w.opts.Section

	nav := w.session.Navigator()
	if err := nav.Home(ctx); err != nil {
		w.logger.LogError(source, err)
		return 0, err
	}
	if err := nav.GoToSection(ctx, w.opts.Section, w.opts.Fresh); err != nil {
		w.logger.LogError(source, err)
		return 0, err
	}

	posts := make(chan *post.Post, 8)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(posts)
		seq, err := w.session.Scan(gctx, w.opts.MaxPosts)
		if err != nil {
			return err
		}
		for p, err := range seq {
			if err != nil {
				return err
			}
			select {
			case posts <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	count := 0
	g.Go(func() error {
		for p := range posts {
			w.deliver(gctx, runID, p, count == 0)
			count++
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		w.logger.LogError(source, fmt.Errorf("run %s: %w", runID, err))
	}

	if w.publisher != nil {
		if trimErr := w.publisher.TrimStreams(ctx); trimErr != nil {
			w.logger.LogError("StreamTrimming", trimErr)
		}
	}
	return count, err
}

func (w *Worker) deliver(ctx context.Context, runID string, p *post.Post, first bool) {
	data, err := json.Marshal(p)
	if err != nil {
		w.logger.LogError(p.ID, err)
		return
	}
	if first && logger.IsDebugEnabled() {
		w.logger.LogInfo("Scanned post: %s", string(data))
	}

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, PublishKey, data); err != nil {
			w.logger.LogError("publish:"+p.ID, err)
		}
	}
	if w.store != nil {
		if err := w.store.Save(ctx, runID, p); err != nil {
			w.logger.LogError("store:"+p.ID, err)
		}
	}
	if w.out != nil {
		fmt.Fprintf(w.out, "%s\n\n", p)
	}
}
