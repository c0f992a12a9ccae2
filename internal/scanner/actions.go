package scanner

import (
	"context"
	stderrors "errors"

	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/throttle"
	"sjsage522/feedscanner/pkg/errors"
)

// Credentials is a site account
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both parts are set
func (c *Credentials) Valid() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// AuthenticatedActionClick clicks target and handles the login overlay the
// site raises for anonymous visitors. With credentials the overlay's login
// path is followed; without them the overlay is dismissed and the action
// fails with authentication required.
//
// An overlay that never shows up counts as success. That covers an already
// authenticated session but also a site that changed its overlay, so it is
// logged at warn level.
func (n *Navigator) AuthenticatedActionClick(ctx context.Context, target selectors.Selector, action string, creds *Credentials) error {
	el, err := n.backend.FindOne(ctx, target)
	if err != nil {
		return err
	}
	if err := n.backend.Click(ctx, el); err != nil {
		return err
	}
	if err := throttle.Sleep(ctx, n.opts.LoginOverlayDelay); err != nil {
		return err
	}

	if creds.Valid() {
		link, err := n.backend.FindOne(ctx, n.catalog.LoginPopup.LoginLink)
		if stderrors.Is(err, errors.ErrElementNotFound) {
			n.log.Warn().Str("action", action).Msg("No login overlay after click, assuming the session is authenticated")
			return nil
		}
		if err != nil {
			return err
		}
		if err := n.backend.Click(ctx, link); err != nil {
			return err
		}
		return n.fillLogin(ctx, creds)
	}

	closeButton, err := n.backend.FindOne(ctx, n.catalog.LoginPopup.CloseButton)
	if stderrors.Is(err, errors.ErrElementNotFound) {
		n.log.Warn().Str("action", action).Msg("No login overlay after click, assuming the session is authenticated")
		return nil
	}
	if err != nil {
		return err
	}
	if err := n.backend.Click(ctx, closeButton); err != nil {
		return err
	}
	return errors.NewAuthenticationRequired(source, action)
}

// Upvote upvotes the current post
func (n *Navigator) Upvote(ctx context.Context, creds *Credentials) error {
	return n.AuthenticatedActionClick(ctx, n.catalog.Post.UpvoteButton, "upvote", creds)
}

// Downvote downvotes the current post
func (n *Navigator) Downvote(ctx context.Context, creds *Credentials) error {
	return n.AuthenticatedActionClick(ctx, n.catalog.Post.DownvoteButton, "downvote", creds)
}

// Login signs in through the top navigation login link
func (n *Navigator) Login(ctx context.Context, creds *Credentials) error {
	if !creds.Valid() {
		return errors.NewAuthenticationRequired(source, "login")
	}
	if _, ok := n.backend.(browser.Typer); !ok {
		return errors.NewInvalidAction(source, "login needs a backend that can type, use the live backend")
	}

	link, err := n.backend.FindOne(ctx, n.catalog.Navigation.LoginLink)
	if err != nil {
		return err
	}
	if err := n.backend.Click(ctx, link); err != nil {
		return err
	}
	return n.fillLogin(ctx, creds)
}

// ToggleNightMode flips the site's color scheme
func (n *Navigator) ToggleNightMode(ctx context.Context) error {
	el, err := n.backend.FindOne(ctx, n.catalog.Navigation.NightModeButton)
	if err != nil {
		return err
	}
	return n.backend.Click(ctx, el)
}

func (n *Navigator) fillLogin(ctx context.Context, creds *Credentials) error {
	typer, ok := n.backend.(browser.Typer)
	if !ok {
		return errors.NewInvalidAction(source, "login needs a backend that can type, use the live backend")
	}

	inputs, err := browser.WaitPresent(ctx, n.backend, n.catalog.Login.UsernameInput, n.opts.WaitTimeout)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.NewRenderTimeout(source, "login form", n.opts.WaitTimeout)
	}
	if err := typer.Type(ctx, inputs[0], creds.Username); err != nil {
		return err
	}

	password, err := n.backend.FindOne(ctx, n.catalog.Login.PasswordInput)
	if err != nil {
		return err
	}
	if err := typer.Type(ctx, password, creds.Password); err != nil {
		return err
	}

	submit, err := n.backend.FindOne(ctx, n.catalog.Login.SubmitButton)
	if err != nil {
		return err
	}
	if err := n.backend.Click(ctx, submit); err != nil {
		return err
	}
	n.log.Info().Str("username", creds.Username).Msg("Submitted login form")
	return nil
}
