package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/format"
	"github.com/aristath/cryptovault/internal/modules/coins"
)

// staleMarker flags a position valued with a fallback price
const staleMarker = "*"

// column is one table column. Cells are right-aligned unless left is set.
type column struct {
	title string
	left  bool
}

// row is one table row with an optional foreground color
type row struct {
	cells []string
	color lipgloss.Color
}

// renderTable lays out rows under a header, padding each column to its
// widest cell.
func renderTable(t Theme, cols []column, rows []row) string {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c.title)
	}
	for _, r := range rows {
		for i, cell := range r.cells {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	cell := func(i int, text string, style lipgloss.Style) string {
		align := lipgloss.Right
		if cols[i].left {
			align = lipgloss.Left
		}
		return style.Width(widths[i]).Align(align).Render(text)
	}

	header := lipgloss.NewStyle().Foreground(t.Muted).Bold(true)
	var lines []string

	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = cell(i, c.title, header)
	}
	lines = append(lines, strings.Join(titles, "  "))

	for _, r := range rows {
		style := lipgloss.NewStyle()
		if r.color != "" {
			style = style.Foreground(r.color)
		}
		cells := make([]string, len(r.cells))
		for i, text := range r.cells {
			cells[i] = cell(i, text, style)
		}
		lines = append(lines, strings.Join(cells, "  "))
	}

	return strings.Join(lines, "\n")
}

// RenderDashboard renders a portfolio snapshot. source describes where the
// snapshot came from (refresh, cache, mutation).
func RenderDashboard(t Theme, s *domain.PortfolioSnapshot, source string) string {
	if s == nil {
		s = domain.EmptySnapshot(time.Time{})
	}

	var profitLoss float64
	for _, p := range s.Positions {
		profitLoss += p.ProfitLoss
	}

	title := lipgloss.NewStyle().Foreground(t.Muted).Render("PORTFOLIO VALUE")
	total := GradientText(format.USD(s.TotalValue), t.Primary, t.Accent)
	pl := lipgloss.NewStyle().Foreground(t.TrendColor(profitLoss)).
		Render(fmt.Sprintf("%s %s", format.Trend(profitLoss), format.SignedUSD(profitLoss)))

	meta := fmt.Sprintf("%d positions", len(s.Positions))
	if !s.ComputedAt.IsZero() {
		meta += " · as of " + s.ComputedAt.Local().Format("2006-01-02 15:04:05")
	}
	if source != "" {
		meta += " · " + source
	}

	lines := []string{
		title,
		total + "  " + pl,
		lipgloss.NewStyle().Foreground(t.Muted).Render(meta),
		"",
	}

	if len(s.Positions) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(t.Muted).
			Render("No positions yet. Add one with: cryptovault add -coin bitcoin -symbol BTC -qty 0.1 -price 30000"))
		return strings.Join(lines, "\n")
	}

	cols := []column{
		{title: "ID", left: true},
		{title: "COIN", left: true},
		{title: "QTY"},
		{title: "BUY"},
		{title: "PRICE"},
		{title: "VALUE"},
		{title: "P/L"},
		{title: "P/L %"},
	}

	stale := false
	rows := make([]row, 0, len(s.Positions))
	for _, p := range s.Positions {
		d := format.Position(p)
		price := d.CurrentPrice
		if !p.PriceAvailable {
			price += staleMarker
			stale = true
		}
		rows = append(rows, row{
			cells: []string{p.ID, p.Symbol, d.Quantity, d.BuyPrice, price, d.CurrentValue, d.ProfitLoss, d.Percent},
			color: t.TrendColor(p.ProfitLoss),
		})
	}

	lines = append(lines, renderTable(t, cols, rows))
	if stale {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(t.Warning).
			Render(staleMarker+" no live quote, valued with a fallback price"))
	}

	return strings.Join(lines, "\n")
}

// RenderCoins renders a market listing
func RenderCoins(t Theme, listings []coins.Listing) string {
	if len(listings) == 0 {
		return lipgloss.NewStyle().Foreground(t.Muted).Render("No coins match.")
	}

	cols := []column{
		{title: "#"},
		{title: "ID", left: true},
		{title: "NAME", left: true},
		{title: "SYMBOL", left: true},
		{title: "PRICE"},
		{title: "24H"},
		{title: "HELD", left: true},
	}

	rows := make([]row, 0, len(listings))
	for i, l := range listings {
		held := ""
		if l.InPortfolio {
			held = "✓"
		}
		rows = append(rows, row{
			cells: []string{
				fmt.Sprintf("%d", i+1),
				l.ID,
				l.Name,
				strings.ToUpper(l.Symbol),
				format.Price(l.CurrentPrice),
				format.SignedPercent(l.PriceChangePercentage24h),
				held,
			},
			color: t.TrendColor(l.PriceChangePercentage24h),
		})
	}

	return renderTable(t, cols, rows)
}
