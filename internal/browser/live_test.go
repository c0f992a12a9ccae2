package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/pkg/errors"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLiveBackend starts a headless browser, skipping the test when none is installed
func newLiveBackend(t *testing.T, origin string) *LiveBackend {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("No Chromium binary available, skipping live backend test")
	}
	b, err := NewLiveBackend(context.Background(), LiveOptions{
		Bin:               bin,
		Headless:          true,
		Origin:            origin,
		NavigationTimeout: 15 * time.Second,
	})
	if err != nil {
		t.Skipf("Browser could not be started: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestLiveLoadAndQuery(t *testing.T) {
	site := startSite(t)
	b := newLiveBackend(t, site.URL())
	ctx := context.Background()
	cat := selectors.Default()

	require.NoError(t, b.Load(ctx, "/gag/aXb1"))
	assert.Equal(t, site.PostURL("aXb1"), b.CurrentURL())

	title, err := b.FindOne(ctx, cat.Post.Title)
	require.NoError(t, err)
	text, err := b.Text(ctx, title)
	require.NoError(t, err)
	assert.Equal(t, "First post", text)

	up, err := b.FindOne(ctx, cat.Post.UpvoteButton)
	require.NoError(t, err)
	label, err := b.FindOneIn(ctx, up, cat.Post.VoteLabel)
	require.NoError(t, err)
	text, err = b.Text(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, "1.2k", text)

	_, err = b.Attribute(ctx, title, "href")
	assert.True(t, stderrors.Is(err, errors.ErrElementNotFound))
}

func TestLiveLoadErrorStatus(t *testing.T) {
	site := startSite(t)
	b := newLiveBackend(t, site.URL())

	err := b.Load(context.Background(), "/gag/missing")
	assert.True(t, stderrors.Is(err, errors.ErrNavigation))
}

func TestLiveWaitForLateElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div><script>
setTimeout(function () {
  var s = document.createElement("section");
  s.className = "late";
  document.getElementById("root").appendChild(s);
}, 300);
</script></body></html>`)
	}))
	defer server.Close()

	b := newLiveBackend(t, server.URL)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx, "/"))
	assert.True(t, Renders(b))

	els, err := WaitPresent(ctx, b, selectors.C("section.late"), 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, els, 1)

	els, err = WaitPresent(ctx, b, selectors.X("//section[@class='never']"), 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, els)
}

func TestLiveStaleElementAfterNavigation(t *testing.T) {
	site := startSite(t)
	b := newLiveBackend(t, site.URL())
	ctx := context.Background()

	require.NoError(t, b.Load(ctx, "/gag/aXb1"))
	title, err := b.FindOne(ctx, selectors.Default().Post.Title)
	require.NoError(t, err)

	require.NoError(t, b.Load(ctx, "/gag/aXb2"))
	_, err = b.Text(ctx, title)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStaleReference))
}

func TestLiveLoadIgnoresFrameStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>host</h1><iframe src="/embed/missing"></iframe></body></html>`)
	})
	mux.HandleFunc("/embed/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	b := newLiveBackend(t, server.URL)
	require.NoError(t, b.Load(context.Background(), "/"))
	assert.Equal(t, server.URL+"/", b.CurrentURL())
}

func TestLiveCloseLeavesAttachedBrowserRunning(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("No Chromium binary available, skipping live backend test")
	}
	l := launcher.New().Bin(bin).Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		t.Skipf("Browser could not be started: %v", err)
	}
	t.Cleanup(func() {
		l.Kill()
		l.Cleanup()
	})

	b, err := NewLiveBackend(context.Background(), LiveOptions{ControlURL: controlURL})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	other := rod.New().ControlURL(controlURL)
	require.NoError(t, other.Connect())
	defer other.Close()
	_, err = other.Pages()
	assert.NoError(t, err)
}

func TestIsStale(t *testing.T) {
	assert.True(t, IsStale(&cdp.Error{Code: -32000, Message: "Could not find node with given id"}))
	assert.True(t, IsStale(fmt.Errorf("wrapped: %w", &cdp.Error{Code: -32000, Message: "Node is detached from document"})))
	assert.False(t, IsStale(&cdp.Error{Code: -32601, Message: "method not found"}))
	assert.False(t, IsStale(fmt.Errorf("plain failure")))
}
