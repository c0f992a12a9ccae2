package scanner

import (
	"context"
	"iter"
	"sync/atomic"

	"sjsage522/feedscanner/internal/post"
	"sjsage522/feedscanner/pkg/errors"
)

// Session turns a navigator into a sequence of posts
type Session struct {
	nav *Navigator
}

// NewSession creates a session over nav
func NewSession(nav *Navigator) *Session {
	return &Session{nav: nav}
}

// Navigator returns the navigator the session drives
func (s *Session) Navigator() *Navigator {
	return s.nav
}

// Scan locates the first post of the current feed, opens it and returns a
// lazy sequence of posts starting there. limit < 0 scans until the consumer
// stops; otherwise exactly limit posts are yielded unless an error ends the
// sequence first. An error is yielded once as the last element.
//
// The sequence consumes backend state and can be ranged over only once; a
// second range yields an invalid action error. A consumer that stops early
// leaves the backend on the last extracted post.
func (s *Session) Scan(ctx context.Context, limit int) (iter.Seq2[*post.Post, error], error) {
	first, err := s.nav.LocateFirst(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.nav.OpenPost(ctx, first); err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(*post.Post, error) bool) {
		if consumed.Swap(true) {
			yield(nil, errors.NewInvalidAction("session", "scan sequence already consumed, start a new scan"))
			return
		}

		for i := 0; limit < 0 || i < limit; i++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if i > 0 {
				if err := s.nav.Advance(ctx); err != nil {
					yield(nil, err)
					return
				}
			}

			p, err := s.nav.ExtractCurrent(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			s.nav.log.Debug().Str("post_id", p.ID).Int("index", i).Msg("Scanned post")
			if !yield(p, nil) {
				return
			}
		}
	}, nil
}

// Collect drains seq into a slice, stopping at the first error
func Collect(seq iter.Seq2[*post.Post, error]) ([]*post.Post, error) {
	var posts []*post.Post
	for p, err := range seq {
		if err != nil {
			return posts, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}
