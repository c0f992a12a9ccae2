// Package post holds the scanned post record and the extraction that builds
// it from a loaded post page.
package post

import (
	"fmt"
	"strings"
	"time"
)

const (
	// URLTemplate is the canonical address of a post
	URLTemplate = "https://9gag.com/gag/%s"
	// ImageURLTemplate is the address of a post's rendered image
	ImageURLTemplate = "https://img-9gag-fun.9cache.com/photo/%s_700bwp.webp"

	// UnknownVotes marks a vote count the page did not show in a known format
	UnknownVotes = -1
)

// Post is one post read from its page
type Post struct {
	ID           string    `json:"post_id"`
	Type         string    `json:"post_type"`
	Section      string    `json:"section"`
	Title        string    `json:"title"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CommentCount int       `json:"comment_count"`
	PublishTime  time.Time `json:"publish_time"`
	FetchTime    time.Time `json:"fetch_time"`
}

// URL is the canonical post address
func (p *Post) URL() string {
	return fmt.Sprintf(URLTemplate, p.ID)
}

// ImageURL is the address of the post image
func (p *Post) ImageURL() string {
	return fmt.Sprintf(ImageURLTemplate, p.ID)
}

// Points is upvotes minus downvotes. It is not meaningful when either count
// is UnknownVotes.
func (p *Post) Points() int {
	return p.Upvotes - p.Downvotes
}

// String renders the post one field per line
func (p *Post) String() string {
	return strings.Join([]string{
		"Post #" + p.ID,
		"post_type: " + p.Type,
		"section: " + p.Section,
		"title: " + p.Title,
		fmt.Sprintf("upvotes: %d", p.Upvotes),
		fmt.Sprintf("downvotes: %d", p.Downvotes),
		fmt.Sprintf("comment_count: %d", p.CommentCount),
		"publish_time: " + p.PublishTime.Format(time.RFC3339),
		"fetch_time: " + p.FetchTime.Format(time.RFC3339),
		"url: " + p.URL(),
	}, "\n ")
}
