package scanner

import (
	"context"
	stderrors "errors"
	"testing"

	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/testsite"
	"sjsage522/feedscanner/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// overlayOnClick makes clicking target raise the login overlay
func overlayOnClick(f *fakeBackend, target selectors.Selector) {
	cat := selectors.Default()
	f.show(target)
	f.onClick[target.Query] = func() {
		f.show(cat.LoginPopup.CloseButton, cat.LoginPopup.LoginLink)
	}
	f.onClick[cat.LoginPopup.LoginLink.Query] = func() {
		f.show(cat.Login.UsernameInput, cat.Login.PasswordInput, cat.Login.SubmitButton)
	}
}

func TestAuthenticatedClickWithoutCredentials(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	overlayOnClick(f, cat.Post.UpvoteButton)

	err := newFakeNavigator(f).Upvote(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAuthenticationRequired))
	assert.Equal(t, []string{cat.Post.UpvoteButton.Query, cat.LoginPopup.CloseButton.Query}, f.clicks)
}

func TestAuthenticatedClickWithCredentials(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	overlayOnClick(f, cat.Post.DownvoteButton)

	err := newFakeNavigator(f).Downvote(context.Background(), &Credentials{Username: "user", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		cat.Post.DownvoteButton.Query,
		cat.LoginPopup.LoginLink.Query,
		cat.Login.SubmitButton.Query,
	}, f.clicks)
	assert.Equal(t, "user", f.typed[cat.Login.UsernameInput.Query])
	assert.Equal(t, "secret", f.typed[cat.Login.PasswordInput.Query])
}

func TestAuthenticatedClickWithoutOverlay(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	f.show(cat.Post.UpvoteButton)

	require.NoError(t, newFakeNavigator(f).Upvote(context.Background(), nil))
	require.NoError(t, newFakeNavigator(f).Upvote(context.Background(), &Credentials{Username: "u", Password: "p"}))
	assert.Len(t, f.clicks, 2)
}

func TestAuthenticatedClickMissingTarget(t *testing.T) {
	f := newFakeBackend()

	err := newFakeNavigator(f).Upvote(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrElementNotFound))
	assert.Empty(t, f.clicks)
}

func TestLogin(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	f.show(cat.Navigation.LoginLink)
	f.onClick[cat.Navigation.LoginLink.Query] = func() {
		f.show(cat.Login.UsernameInput, cat.Login.PasswordInput, cat.Login.SubmitButton)
	}

	require.NoError(t, newFakeNavigator(f).Login(context.Background(), &Credentials{Username: "user", Password: "secret"}))
	assert.Equal(t, "user", f.typed[cat.Login.UsernameInput.Query])
	assert.Contains(t, f.waits, cat.Login.UsernameInput.Query)
}

func TestLoginFormNeverRenders(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	f.show(cat.Navigation.LoginLink)

	err := newFakeNavigator(f).Login(context.Background(), &Credentials{Username: "user", Password: "secret"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRenderTimeout))
	assert.Empty(t, f.typed)
}

func TestLoginNeedsCredentials(t *testing.T) {
	f := newFakeBackend()

	err := newFakeNavigator(f).Login(context.Background(), &Credentials{Username: "user"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAuthenticationRequired))
}

func TestLoginOnStaticBackend(t *testing.T) {
	site := startSite(t, testsite.Default())
	nav := newStaticNavigator(t, site)

	err := nav.Login(context.Background(), &Credentials{Username: "user", Password: "secret"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidAction))
}

func TestToggleNightMode(t *testing.T) {
	f := newFakeBackend()
	cat := selectors.Default()
	f.show(cat.Navigation.NightModeButton)

	require.NoError(t, newFakeNavigator(f).ToggleNightMode(context.Background()))
	assert.Equal(t, []string{cat.Navigation.NightModeButton.Query}, f.clicks)
}
