package selectors

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"sjsage522/feedscanner/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.NotEmpty(t, c.Version)
	assert.Equal(t, X(`//article[2]`), c.NthArticle(2))
	assert.Equal(t, X(`.//header/a`), c.Feed.ArticleLink)
	assert.Equal(t, XPath, c.Post.Title.Kind)
	assert.Equal(t, `//*[@id="individual-post"]/article/header/h1`, c.Post.Title.Query)
	assert.Equal(t, C(`meta[property="og:url"]`), c.Post.URLMeta)
}

func TestSelectorUnmarshal(t *testing.T) {
	var doc struct {
		A Selector `yaml:"a"`
		B Selector `yaml:"b"`
		C Selector `yaml:"c"`
	}
	src := "a: //div\nb: {css: div.x}\nc: {xpath: //span}\n"
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	assert.Equal(t, X("//div"), doc.A)
	assert.Equal(t, C("div.x"), doc.B)
	assert.Equal(t, X("//span"), doc.C)

	err := yaml.Unmarshal([]byte("a: {jquery: div}\n"), &doc)
	assert.ErrorContains(t, err, "unknown selector kind")

	err = yaml.Unmarshal([]byte("a: {css: div, xpath: //div}\n"), &doc)
	assert.ErrorContains(t, err, "exactly one")
}

func TestSelectorMarshalRoundTripsKind(t *testing.T) {
	out, err := yaml.Marshal(map[string]Selector{"s": C("a.next")})
	require.NoError(t, err)
	assert.Contains(t, string(out), "css: a.next")
}

func TestLoadOverrideFile(t *testing.T) {
	c := Default()
	c.Version = "test-2"
	c.Post.Title = C("h1.title")
	data, err := yaml.Marshal(c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-2", loaded.Version)
	assert.Equal(t, C("h1.title"), loaded.Post.Title)
	assert.Equal(t, c.Post.NextButton, loaded.Post.NextButton)
}

func TestLoadRejectsIncompleteCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: x\nfeed:\n  article_nth: '//article[%d]'\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, stderrors.Is(err, errors.ErrConfiguration))
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Version, c.Version)
}
