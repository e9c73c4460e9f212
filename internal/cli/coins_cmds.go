package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/format"
	"github.com/aristath/cryptovault/internal/modules/coins"
)

// coinsCmd holds the flags for the 'coins' subcommand.
type coinsCmd struct {
	query string
	limit int
}

func (*coinsCmd) Name() string     { return "coins" }
func (*coinsCmd) Synopsis() string { return "list the top coins by market cap" }
func (*coinsCmd) Usage() string {
	return `cryptovault coins [-q <filter>] [-n <count>]

  Lists the top coins by market cap. Coins already held are ticked.
`
}

func (c *coinsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.query, "q", "", "filter by name or symbol")
	f.IntVar(&c.limit, "n", 20, "maximum rows, 0 for all")
}

func (c *coinsCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)

	listings, err := app.Coins.List(ctx, app.Sessions.Current(), c.query)
	if err != nil {
		return app.fail(ctx, "Failed to load coins", err)
	}
	if c.limit > 0 && len(listings) > c.limit {
		listings = listings[:c.limit]
	}

	fmt.Fprintln(app.Out, RenderCoins(app.Theme, listings))
	return subcommands.ExitSuccess
}

// quickAddCmd is the 'quick-add' subcommand.
type quickAddCmd struct{}

func (*quickAddCmd) Name() string     { return "quick-add" }
func (*quickAddCmd) Synopsis() string { return "add one unit of a coin at its current price" }
func (*quickAddCmd) Usage() string {
	return `cryptovault quick-add <coin-key>

  Adds a position of one unit bought at the current market price.
`
}

func (*quickAddCmd) SetFlags(f *flag.FlagSet) {}

func (c *quickAddCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	if f.NArg() != 1 {
		fmt.Fprintln(app.Err, "usage: cryptovault quick-add <coin-key>")
		return subcommands.ExitUsageError
	}
	coinKey := strings.ToLower(strings.TrimSpace(f.Arg(0)))

	s, ok := app.requireSession()
	if !ok {
		return subcommands.ExitFailure
	}

	app.Engine.LoadCachedSnapshot(ctx)

	snapshot, err := app.Coins.QuickAdd(ctx, s, coinKey)
	switch {
	case errors.Is(err, coins.ErrAlreadyHeld):
		fmt.Fprintf(app.Err, "%s is already in your portfolio\n", coinKey)
		return subcommands.ExitFailure
	case errors.Is(err, coins.ErrCoinNotFound):
		fmt.Fprintf(app.Err, "%s is not among the listed coins\n", coinKey)
		return subcommands.ExitFailure
	case err != nil:
		return app.fail(ctx, "Failed to add coin", err)
	}

	fmt.Fprintf(app.Out, "Added 1 %s. Portfolio: %s\n", coinKey, format.USD(snapshot.TotalValue))
	app.printNotices()
	return subcommands.ExitSuccess
}
