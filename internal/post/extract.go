package post

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/pkg/errors"
)

const (
	source = "extractor"

	// typeMarker is carried by every post type element next to the type class
	typeMarker = "post-view"
	typeSuffix = "-post"
)

// publishLayouts accept offsets written as +0000 and as +00:00
var publishLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
}

// structuredData is the subset of the page's JSON-LD block we read
type structuredData struct {
	URL           string `json:"url"`
	DatePublished string `json:"datePublished"`
}

// Extract reads the post on the page q currently holds. pageURL, when set,
// supplies the post id; otherwise the id comes from the page's own metadata.
// Any missing or unparsable field fails the whole post with a malformed-post
// error naming the field.
func Extract(ctx context.Context, q browser.Querier, cat *selectors.Catalog, pageURL string) (*Post, error) {
	meta, metaErr := readStructuredData(ctx, q, cat)

	id, err := postID(ctx, q, cat, pageURL, meta)
	if err != nil {
		return nil, err
	}

	postType, err := readPostType(ctx, q, cat)
	if err != nil {
		return nil, err
	}

	section, err := readText(ctx, q, cat.Post.SectionLabel, "section")
	if err != nil {
		return nil, err
	}

	title, err := readText(ctx, q, cat.Post.Title, "title")
	if err != nil {
		return nil, err
	}

	upvotes, err := readVotes(ctx, q, cat, cat.Post.UpvoteButton, "upvotes")
	if err != nil {
		return nil, err
	}

	downvotes, err := readVotes(ctx, q, cat, cat.Post.DownvoteButton, "downvotes")
	if err != nil {
		return nil, err
	}

	commentLabel, err := readText(ctx, q, cat.Post.CommentCount, "commentCount")
	if err != nil {
		return nil, err
	}
	comments, err := ParseCommentLabel(commentLabel)
	if err != nil {
		return nil, malformed("commentCount", fmt.Sprintf("unexpected comment label %q", commentLabel), err)
	}

	if metaErr != nil {
		return nil, malformed("publishTime", "no structured data on page", metaErr)
	}
	published, err := parsePublishTime(meta.DatePublished)
	if err != nil {
		return nil, err
	}

	return &Post{
		ID:           id,
		Type:         postType,
		Section:      section,
		Title:        title,
		Upvotes:      upvotes,
		Downvotes:    downvotes,
		CommentCount: comments,
		PublishTime:  published,
		FetchTime:    time.Now(),
	}, nil
}

// ExtractHTML parses a saved post page and extracts it
func ExtractHTML(ctx context.Context, r io.Reader, cat *selectors.Catalog, pageURL string) (*Post, error) {
	page, err := browser.ParsePage(r, pageURL)
	if err != nil {
		return nil, malformed("page", "unparsable page", err)
	}
	return Extract(ctx, page, cat, pageURL)
}

func malformed(field, message string, err error) error {
	if err != nil && stderrors.Is(err, errors.ErrStaleReference) {
		return err
	}
	return errors.NewMalformedPost(source, field, message, err)
}

func postID(ctx context.Context, q browser.Querier, cat *selectors.Catalog, pageURL string, meta *structuredData) (string, error) {
	if pageURL != "" {
		id, err := helpers.LastPathSegment(pageURL)
		if err != nil {
			return "", malformed("postId", "page url has no post id: "+pageURL, err)
		}
		return id, nil
	}

	if meta != nil && meta.URL != "" {
		if id, err := helpers.LastPathSegment(meta.URL); err == nil {
			return id, nil
		}
	}

	if !cat.Post.URLMeta.IsZero() {
		if el, err := q.FindOne(ctx, cat.Post.URLMeta); err == nil {
			if content, err := q.Attribute(ctx, el, "content"); err == nil {
				if id, err := helpers.LastPathSegment(content); err == nil {
					return id, nil
				}
			}
		}
	}
	return "", malformed("postId", "no url given and none found on the page", nil)
}

func readStructuredData(ctx context.Context, q browser.Querier, cat *selectors.Catalog) (*structuredData, error) {
	scripts, err := q.FindAll(ctx, cat.Post.StructuredData)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, script := range scripts {
		raw, err := q.Text(ctx, script)
		if err != nil {
			lastErr = err
			continue
		}
		var data structuredData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			lastErr = err
			continue
		}
		if data.DatePublished != "" || data.URL != "" {
			return &data, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%d structured data blocks, none usable", len(scripts))
	}
	return nil, lastErr
}

func parsePublishTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, malformed("publishTime", "datePublished missing", nil)
	}
	var lastErr error
	for _, layout := range publishLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, malformed("publishTime", fmt.Sprintf("unparsable datePublished %q", raw), lastErr)
}

func readPostType(ctx context.Context, q browser.Querier, cat *selectors.Catalog) (string, error) {
	el, err := q.FindOne(ctx, cat.Post.TypeDiv)
	if err != nil {
		return "", malformed("postType", "post type element missing", err)
	}
	class, err := q.Attribute(ctx, el, "class")
	if err != nil {
		return "", malformed("postType", "post type element has no class", err)
	}

	seen := map[string]bool{}
	var remaining []string
	for _, c := range strings.Fields(class) {
		if c == typeMarker || seen[c] {
			continue
		}
		seen[c] = true
		remaining = append(remaining, c)
	}
	if len(remaining) != 1 {
		return "", malformed("postType", fmt.Sprintf("expected one type class besides %s, got %q", typeMarker, class), nil)
	}
	return strings.TrimSuffix(remaining[0], typeSuffix), nil
}

func readText(ctx context.Context, q browser.Querier, sel selectors.Selector, field string) (string, error) {
	el, err := q.FindOne(ctx, sel)
	if err != nil {
		return "", malformed(field, field+" element missing", err)
	}
	text, err := q.Text(ctx, el)
	if err != nil {
		return "", malformed(field, "could not read "+field, err)
	}
	return strings.TrimSpace(text), nil
}

func readVotes(ctx context.Context, q browser.Querier, cat *selectors.Catalog, button selectors.Selector, field string) (int, error) {
	el, err := q.FindOne(ctx, button)
	if err != nil {
		return 0, malformed(field, "vote button missing", err)
	}
	label, err := q.FindOneIn(ctx, el, cat.Post.VoteLabel)
	if err != nil {
		return 0, malformed(field, "vote label missing", err)
	}
	text, err := q.Text(ctx, label)
	if err != nil {
		return 0, malformed(field, "could not read vote label", err)
	}
	return ParseVoteLabel(text), nil
}
