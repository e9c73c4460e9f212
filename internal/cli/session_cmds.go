package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/domain"
)

// passwordEnv lets scripts pass the password without it showing in the process list
const passwordEnv = "CRYPTOVAULT_PASSWORD"

func passwordOr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(passwordEnv)
}

// loginCmd holds the flags for the 'login' subcommand.
type loginCmd struct {
	email    string
	password string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "log in and store the session token" }
func (*loginCmd) Usage() string {
	return `cryptovault login -email <email> [-password <password>]

  Logs in against the auth service. The password may also be given in
  $CRYPTOVAULT_PASSWORD.
`
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "account email")
	f.StringVar(&c.password, "password", "", "account password")
}

func (c *loginCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	creds := domain.Credentials{Email: strings.TrimSpace(c.email), Password: passwordOr(c.password)}
	if creds.Email == "" || creds.Password == "" {
		fmt.Fprintln(app.Err, "email and password are required")
		return subcommands.ExitUsageError
	}

	s, err := app.Sessions.Login(ctx, creds)
	if err != nil {
		return app.fail(ctx, "Login failed", err)
	}
	fmt.Fprintf(app.Out, "Logged in as %s\n", s.Email)

	snapshot, err := app.Engine.ForceRefresh(ctx, s)
	if err != nil {
		return app.fail(ctx, "Refresh failed", err)
	}
	fmt.Fprintf(app.Out, "Portfolio: %s across %d positions\n", formatTotal(snapshot), len(snapshot.Positions))
	app.printNotices()
	return subcommands.ExitSuccess
}

// signupCmd holds the flags for the 'signup' subcommand.
type signupCmd struct {
	name     string
	email    string
	password string
}

func (*signupCmd) Name() string     { return "signup" }
func (*signupCmd) Synopsis() string { return "create an account" }
func (*signupCmd) Usage() string {
	return `cryptovault signup -name <name> -email <email> [-password <password>]

  Creates an account. Log in afterwards to start a session.
`
}

func (c *signupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "display name")
	f.StringVar(&c.email, "email", "", "account email")
	f.StringVar(&c.password, "password", "", "account password")
}

func (c *signupCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	creds := domain.Credentials{
		Name:     strings.TrimSpace(c.name),
		Email:    strings.TrimSpace(c.email),
		Password: passwordOr(c.password),
	}
	if creds.Name == "" || creds.Email == "" || creds.Password == "" {
		fmt.Fprintln(app.Err, "name, email and password are required")
		return subcommands.ExitUsageError
	}

	if err := app.Sessions.Signup(ctx, creds); err != nil {
		return app.fail(ctx, "Signup failed", err)
	}

	fmt.Fprintf(app.Out, "Account created. Log in with: cryptovault login -email %s\n", creds.Email)
	return subcommands.ExitSuccess
}

// logoutCmd is the 'logout' subcommand.
type logoutCmd struct{}

func (*logoutCmd) Name() string             { return "logout" }
func (*logoutCmd) Synopsis() string         { return "forget the stored session token" }
func (*logoutCmd) Usage() string            { return "cryptovault logout\n" }
func (*logoutCmd) SetFlags(f *flag.FlagSet) {}

func (c *logoutCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	if err := app.Sessions.Logout(ctx); err != nil {
		fmt.Fprintf(app.Err, "Logout failed: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(app.Out, "Logged out")
	return subcommands.ExitSuccess
}

// whoamiCmd is the 'whoami' subcommand.
type whoamiCmd struct{}

func (*whoamiCmd) Name() string             { return "whoami" }
func (*whoamiCmd) Synopsis() string         { return "show the logged in user" }
func (*whoamiCmd) Usage() string            { return "cryptovault whoami\n" }
func (*whoamiCmd) SetFlags(f *flag.FlagSet) {}

func (c *whoamiCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	if _, ok := app.requireSession(); !ok {
		return subcommands.ExitFailure
	}

	profile, err := app.Sessions.Profile(ctx)
	if err != nil {
		return app.fail(ctx, "Profile unavailable", err)
	}

	fmt.Fprintf(app.Out, "%s <%s>\n", profile.Name, profile.Email)
	return subcommands.ExitSuccess
}
