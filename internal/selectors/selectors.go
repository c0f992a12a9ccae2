// Package selectors holds the named locators used to find elements on feed
// and post pages. Locators live in a versioned YAML catalog so that site
// layout changes are a data edit rather than a code change.
package selectors

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"sjsage522/feedscanner/pkg/errors"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/ninegag.yaml
var defaultCatalog []byte

// Kind is the query language of a selector
type Kind int

const (
	XPath Kind = iota
	CSS
)

func (k Kind) String() string {
	if k == CSS {
		return "css"
	}
	return "xpath"
}

// Selector is a query string tagged with its language
type Selector struct {
	Kind  Kind
	Query string
}

// X builds an XPath selector
func X(query string) Selector {
	return Selector{Kind: XPath, Query: query}
}

// C builds a CSS selector
func C(query string) Selector {
	return Selector{Kind: CSS, Query: query}
}

func (s Selector) String() string {
	return s.Kind.String() + ":" + s.Query
}

// IsZero reports whether the selector is unset
func (s Selector) IsZero() bool {
	return s.Query == ""
}

// UnmarshalYAML accepts a plain scalar (XPath) or a single-key mapping
// {xpath: ...} / {css: ...}.
func (s *Selector) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = X(value.Value)
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return err
		}
		if len(m) != 1 {
			return fmt.Errorf("line %d: selector mapping needs exactly one of xpath or css", value.Line)
		}
		for k, q := range m {
			switch strings.ToLower(k) {
			case "xpath":
				*s = X(q)
			case "css":
				*s = C(q)
			default:
				return fmt.Errorf("line %d: unknown selector kind %q", value.Line, k)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: selector must be a string or mapping", value.Line)
	}
}

// MarshalYAML writes XPath selectors as scalars and CSS selectors as {css: ...}
func (s Selector) MarshalYAML() (interface{}, error) {
	if s.Kind == CSS {
		return map[string]string{"css": s.Query}, nil
	}
	return s.Query, nil
}

// Feed locates posts on a feed page
type Feed struct {
	ArticleNth  string   `yaml:"article_nth"`
	ArticleLink Selector `yaml:"article_link"`
	OpenBoard   Selector `yaml:"open_board"`
}

// Navigation locates the site-wide controls
type Navigation struct {
	SectionList     Selector `yaml:"section_list"`
	SectionItems    Selector `yaml:"section_items"`
	NightModeButton Selector `yaml:"night_mode_button"`
	LoginLink       Selector `yaml:"login_link"`
}

// Login locates the login form fields
type Login struct {
	UsernameInput Selector `yaml:"username_input"`
	PasswordInput Selector `yaml:"password_input"`
	SubmitButton  Selector `yaml:"submit_button"`
}

// LoginPopup locates the overlay shown when an action needs a session
type LoginPopup struct {
	CloseButton Selector `yaml:"close_button"`
	LoginLink   Selector `yaml:"login_link"`
}

// Post locates the parts of a single post page
type Post struct {
	UpvoteButton       Selector `yaml:"upvote_button"`
	DownvoteButton     Selector `yaml:"downvote_button"`
	VoteLabel          Selector `yaml:"vote_label"`
	NextButton         Selector `yaml:"next_button"`
	TypeDiv            Selector `yaml:"type_div"`
	SectionLabel       Selector `yaml:"section_label"`
	Title              Selector `yaml:"title"`
	CommentCount       Selector `yaml:"comment_count"`
	CommentRenderCheck Selector `yaml:"comment_render_check"`
	StructuredData     Selector `yaml:"structured_data"`
	URLMeta            Selector `yaml:"url_meta"`
}

// Catalog is a versioned set of locators. It is read-only after loading.
type Catalog struct {
	Version    string     `yaml:"version"`
	Feed       Feed       `yaml:"feed"`
	Navigation Navigation `yaml:"navigation"`
	Login      Login      `yaml:"login"`
	LoginPopup LoginPopup `yaml:"login_popup"`
	Post       Post       `yaml:"post"`
}

// NthArticle returns the selector for the article at 1-based rank n
func (c *Catalog) NthArticle(n int) Selector {
	return X(fmt.Sprintf(c.Feed.ArticleNth, n))
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded selector catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path. An empty path returns the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("failed to read selector catalog "+path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.NewConfiguration("failed to parse selector catalog", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every locator the scanner relies on is present
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return errors.NewConfiguration("selector catalog has no version", nil)
	}
	if !strings.Contains(c.Feed.ArticleNth, "%d") {
		return errors.NewConfiguration("feed.article_nth must contain %d", nil)
	}

	required := map[string]Selector{
		"feed.article_link":         c.Feed.ArticleLink,
		"feed.open_board":           c.Feed.OpenBoard,
		"navigation.section_list":   c.Navigation.SectionList,
		"navigation.section_items":  c.Navigation.SectionItems,
		"navigation.login_link":     c.Navigation.LoginLink,
		"login.username_input":      c.Login.UsernameInput,
		"login.password_input":      c.Login.PasswordInput,
		"login.submit_button":       c.Login.SubmitButton,
		"login_popup.close_button":  c.LoginPopup.CloseButton,
		"login_popup.login_link":    c.LoginPopup.LoginLink,
		"post.upvote_button":        c.Post.UpvoteButton,
		"post.downvote_button":      c.Post.DownvoteButton,
		"post.vote_label":           c.Post.VoteLabel,
		"post.next_button":          c.Post.NextButton,
		"post.type_div":             c.Post.TypeDiv,
		"post.section_label":        c.Post.SectionLabel,
		"post.title":                c.Post.Title,
		"post.comment_count":        c.Post.CommentCount,
		"post.comment_render_check": c.Post.CommentRenderCheck,
		"post.structured_data":      c.Post.StructuredData,
	}
	for name, sel := range required {
		if sel.IsZero() {
			return errors.NewConfiguration("selector catalog is missing "+name, nil)
		}
	}
	return nil
}
