package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/format"
)

func formatTotal(s *domain.PortfolioSnapshot) string {
	if s == nil {
		return format.USD(0)
	}
	return format.USD(s.TotalValue)
}

// dashboardCmd holds the flags for the 'dashboard' subcommand.
type dashboardCmd struct {
	cached bool
}

func (*dashboardCmd) Name() string     { return "dashboard" }
func (*dashboardCmd) Synopsis() string { return "show the valued portfolio" }
func (*dashboardCmd) Usage() string {
	return `cryptovault dashboard [-cached]

  Refreshes positions and prices and prints the portfolio. With -cached the
  last stored snapshot is shown without any network call.
`
}

func (c *dashboardCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.cached, "cached", false, "show the stored snapshot only")
}

func (c *dashboardCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	s, ok := app.requireSession()
	if !ok {
		return subcommands.ExitFailure
	}

	if c.cached {
		snapshot, found := app.Engine.LoadCachedSnapshot(ctx)
		if !found {
			fmt.Fprintln(app.Err, "No cached portfolio. Run: cryptovault dashboard")
			return subcommands.ExitFailure
		}
		fmt.Fprintln(app.Out, RenderDashboard(app.Theme, snapshot, "cached"))
		return subcommands.ExitSuccess
	}

	// Seed previous prices for the fallback policy
	app.Engine.LoadCachedSnapshot(ctx)

	snapshot, err := app.Engine.Refresh(ctx, s)
	if err != nil {
		return app.fail(ctx, "Refresh failed", err)
	}

	fmt.Fprintln(app.Out, RenderDashboard(app.Theme, snapshot, "live"))
	app.printNotices()
	return subcommands.ExitSuccess
}

// addCmd holds the flags for the 'add' subcommand.
type addCmd struct {
	coin     string
	symbol   string
	quantity float64
	price    float64
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a position" }
func (*addCmd) Usage() string {
	return `cryptovault add -coin <coin-key> -symbol <ticker> -qty <quantity> -price <buy price>

  Records a position. coin-key is the market identifier, e.g. "bitcoin".
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.coin, "coin", "", "market coin key, e.g. bitcoin")
	f.StringVar(&c.symbol, "symbol", "", "ticker symbol, e.g. BTC")
	f.Float64Var(&c.quantity, "qty", 0, "quantity held")
	f.Float64Var(&c.price, "price", 0, "average buy price in USD")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)

	p := domain.NewPosition{
		CoinKey:  c.coin,
		Symbol:   c.symbol,
		Quantity: c.quantity,
		BuyPrice: c.price,
	}.Normalize()
	if err := p.Validate(); err != nil {
		fmt.Fprintf(app.Err, "Invalid position: %v\n", err)
		return subcommands.ExitUsageError
	}

	s, ok := app.requireSession()
	if !ok {
		return subcommands.ExitFailure
	}

	// Seed previous prices for the fallback policy
	app.Engine.LoadCachedSnapshot(ctx)

	snapshot, err := app.Engine.AddPosition(ctx, s, p)
	if err != nil {
		return app.fail(ctx, "Failed to add position", err)
	}

	fmt.Fprintf(app.Out, "Added %s %s. Portfolio: %s\n", format.Quantity(p.Quantity), p.Symbol, formatTotal(snapshot))
	app.printNotices()
	return subcommands.ExitSuccess
}

// removeCmd holds the flags for the 'remove' subcommand.
type removeCmd struct {
	id   string
	coin string
}

func (*removeCmd) Name() string     { return "remove" }
func (*removeCmd) Synopsis() string { return "remove a position" }
func (*removeCmd) Usage() string {
	return `cryptovault remove (-id <position id> | -coin <coin-key>)

  Deletes a position by id, or the position holding a coin.
`
}

func (c *removeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "position id, as shown by dashboard")
	f.StringVar(&c.coin, "coin", "", "market coin key")
}

func (c *removeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	app := appFrom(args)
	id, coin := strings.TrimSpace(c.id), strings.TrimSpace(c.coin)
	if (id == "") == (coin == "") {
		fmt.Fprintln(app.Err, "exactly one of -id or -coin is required")
		return subcommands.ExitUsageError
	}

	s, ok := app.requireSession()
	if !ok {
		return subcommands.ExitFailure
	}

	app.Engine.LoadCachedSnapshot(ctx)

	var err error
	var snapshot *domain.PortfolioSnapshot
	if id != "" {
		snapshot, err = app.Engine.RemovePosition(ctx, s, id)
	} else {
		snapshot, err = app.Coins.Remove(ctx, s, coin)
	}
	if err != nil {
		return app.fail(ctx, "Failed to remove position", err)
	}

	fmt.Fprintf(app.Out, "Removed. Portfolio: %s\n", formatTotal(snapshot))
	app.printNotices()
	return subcommands.ExitSuccess
}
