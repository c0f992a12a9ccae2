// Package testsite serves a small synthetic copy of the 9GAG page layout for
// tests: section feeds, post pages chained by their next links, and a board
// entry that can be pinned to the top of the feed.
package testsite

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"text/template"
)

// Post is one post served by the site
type Post struct {
	ID        string
	Type      string
	Section   string
	Title     string
	Upvotes   string
	Downvotes string
	Comments  string
	// Published is the raw datePublished value; empty omits it
	Published string
}

// Site is a synthetic feed. Posts link to each other in slice order and the
// last post links back to the first, like the endless real feed.
type Site struct {
	Posts []Post
	// BoardFirst pins an "Open board" entry above the first post
	BoardFirst bool
	// Sections are the entries of the section menu
	Sections []string
	// HideMenu drops the section menu from feed pages
	HideMenu bool
	// NoNextOnLast removes the next link from the last post
	NoNextOnLast bool

	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

// Default returns a site with three posts across two sections
func Default() *Site {
	return &Site{
		Sections: []string{"Funny", "Gaming", "Wholesome"},
		Posts: []Post{
			{ID: "aXb1", Type: "photo", Section: "Funny", Title: "First post", Upvotes: "1.2k", Downvotes: "35", Comments: "12 Comments", Published: "2019-10-01T12:30:00+0000"},
			{ID: "aXb2", Type: "video", Section: "Funny", Title: "Second post", Upvotes: "870", Downvotes: "", Comments: "Comments", Published: "2019-10-01T13:00:00+0000"},
			{ID: "aXb3", Type: "animated", Section: "Gaming", Title: "Third post", Upvotes: "15k", Downvotes: "2", Comments: "3 Comments", Published: "2019-10-02T08:15:42+0200"},
		},
	}
}

// Start serves the site until the test server is closed
func (s *Site) Start() *httptest.Server {
	s.hits = map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gag/{id}", s.servePost)
	mux.HandleFunc("GET /board/{id}", s.serveBoard)
	mux.HandleFunc("GET /", s.serveFeed)
	s.server = httptest.NewServer(mux)
	return s.server
}

// URL is the site root
func (s *Site) URL() string {
	return s.server.URL
}

// Hits returns how often path was requested
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Site) count(r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()
}

// PostURL is the absolute address of the post with id
func (s *Site) PostURL(id string) string {
	return s.server.URL + "/gag/" + id
}

func (s *Site) serveFeed(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	section := strings.Trim(strings.TrimSuffix(r.URL.Path, "/fresh"), "/")
	if section == "" {
		section = "hot"
	}
	if !s.knownSection(section) {
		http.NotFound(w, r)
		return
	}

	data := struct {
		Section    string
		Sections   []string
		Posts      []Post
		BoardFirst bool
		HideMenu   bool
	}{section, s.Sections, s.Posts, s.BoardFirst, s.HideMenu}
	render(w, feedTemplate, data)
}

func (s *Site) knownSection(name string) bool {
	switch name {
	case "hot", "trending", "fresh":
		return true
	}
	for _, sec := range s.Sections {
		if strings.EqualFold(sec, name) {
			return true
		}
	}
	return false
}

func (s *Site) servePost(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	id := r.PathValue("id")
	for i, p := range s.Posts {
		if p.ID != id {
			continue
		}
		next := s.Posts[(i+1)%len(s.Posts)].ID
		if s.NoNextOnLast && i == len(s.Posts)-1 {
			next = ""
		}
		data := struct {
			Post
			Next    string
			BaseURL string
		}{p, next, s.server.URL}
		render(w, postTemplate, data)
		return
	}
	http.NotFound(w, r)
}

func (s *Site) serveBoard(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	fmt.Fprintf(w, "<html><body><h1>Board %s</h1></body></html>", r.PathValue("id"))
}

func render(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var funcs = template.FuncMap{"lower": strings.ToLower}

var feedTemplate = template.Must(template.New("feed").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><head><title>9GAG - {{.Section}}</title></head>
<body>
<div id="top-nav"><div><div>
  <div><a class="night-mode" href="#night">Night mode</a></div>
  <div><a class="login" href="/login">Log in</a></div>
</div></div></div>
<div id="container">
  <div><div>{{if not .HideMenu}}<section><ul>
    {{range .Sections}}<li><a href="/{{lower .}}">{{.}}</a></li>
    {{end}}</ul></section>{{end}}</div></div>
  <div id="list-view">
    {{if .BoardFirst}}<article id="jsid-board">
      <a href="/board/b1"><div>Open board</div></a>
      <header><a href="/board/b1">Weekly board</a></header>
    </article>{{end}}
    {{range .Posts}}<article id="jsid-post-{{.ID}}">
      <header><a href="/gag/{{.ID}}"><h1>{{.Title}}</h1></a></header>
    </article>
    {{end}}
  </div>
</div>
</body></html>`))

var postTemplate = template.Must(template.New("post").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><head>
<title>{{.Title}}</title>
<meta property="og:url" content="{{.BaseURL}}/gag/{{.ID}}">
<script type="application/ld+json">{"@context":"http://schema.org","@type":"Article","url":"{{.BaseURL}}/gag/{{.ID}}"{{if .Published}},"datePublished":"{{.Published}}"{{end}}}</script>
</head>
<body>
<div id="top-nav"><div><div>
  <div><a class="night-mode" href="#night">Night mode</a></div>
  <div><a class="login" href="/login">Log in</a></div>
</div></div></div>
<div id="individual-post">
<article>
  <header>
    <div class="post-section"><a class="section" href="/{{lower .Section}}">{{.Section}}</a></div>
    <h1>{{.Title}}</h1>
  </header>
  <div class="post-container"><a href="/gag/{{.ID}}"><div class="post-view {{.Type}}-post">media</div></a></div>
  <div class="post-afterbar"><div class="vote"><ul>
    <li><a class="up" href="/gag/{{.ID}}#up"><span>{{.Upvotes}}</span></a></li>
    <li><a class="down" href="/gag/{{.ID}}#down"><span>{{.Downvotes}}</span></a></li>
  </ul></div></div>
  <div class="post-nav">{{if .Next}}<a class="button next" href="/gag/{{.Next}}">Next post</a>{{end}}</div>
</article>
</div>
<section class="post-comment">
  <header><span>{{.Comments}}</span></header>
  <section class="comment-list"><section class="comment-entry">first!</section></section>
</section>
</body></html>`))
