// Package cli implements the cryptovault command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/modules/coins"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	"github.com/aristath/cryptovault/internal/notifications"
	"github.com/aristath/cryptovault/internal/session"
)

// App is what every command operates on. main builds it once and passes it
// to the commander's Execute.
type App struct {
	Sessions      *session.Controller
	Engine        *valuation.Engine
	Coins         *coins.Service
	Notifications *notifications.Queue
	Theme         Theme
	Out           io.Writer
	Err           io.Writer
}

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&loginCmd{}, "session")
	c.Register(&signupCmd{}, "session")
	c.Register(&logoutCmd{}, "session")
	c.Register(&whoamiCmd{}, "session")

	c.Register(&dashboardCmd{}, "portfolio")
	c.Register(&watchCmd{}, "portfolio")
	c.Register(&addCmd{}, "portfolio")
	c.Register(&removeCmd{}, "portfolio")

	c.Register(&coinsCmd{}, "market")
	c.Register(&quickAddCmd{}, "market")
}

func appFrom(args []interface{}) *App {
	if len(args) == 0 {
		return nil
	}
	app, _ := args[0].(*App)
	return app
}

// requireSession returns the current session, or reports that the user
// must log in first.
func (a *App) requireSession() (domain.Session, bool) {
	s := a.Sessions.Current()
	if !s.Authenticated() {
		fmt.Fprintln(a.Err, "Not logged in. Run: cryptovault login -email <email>")
		return s, false
	}
	return s, true
}

// fail prints err and maps it to an exit status. A rejected token ends the
// session so the next command asks for a login. Client errors print the
// upstream message alone.
func (a *App) fail(ctx context.Context, what string, err error) subcommands.ExitStatus {
	if domain.IsAuthError(err) && a.Sessions.Current().Authenticated() {
		a.Sessions.Expire(ctx)
		fmt.Fprintf(a.Err, "%s: session expired, please log in again\n", what)
		return subcommands.ExitFailure
	}

	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500 && upErr.Err != nil {
		fmt.Fprintf(a.Err, "%s: %v\n", what, upErr.Err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(a.Err, "%s: %v\n", what, err)
	return subcommands.ExitFailure
}

// printNotices writes the active error notices raised during the command,
// so degraded results are not mistaken for live ones.
func (a *App) printNotices() {
	if a.Notifications == nil {
		return
	}
	for _, n := range a.Notifications.Active() {
		if n.Kind == notifications.KindError {
			fmt.Fprintf(a.Err, "! %s\n", n.Message)
		}
	}
}
