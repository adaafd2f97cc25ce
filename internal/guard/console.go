package guard

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintStartupInfo renders the startup banner table
func (g *Guard) PrintStartupInfo(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK GUARD INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🏪 Exchange", g.store.ExchangeName()},
		{"🔧 Environment", g.config.Environment},
		{"⏰ Monitor Interval", g.config.Loop.MonitorInterval.String()},
		{"⚡ Rapid-Loss Interval", g.config.Loop.RapidLossInterval.String()},
		{"🌐 Exogenous Interval", g.config.Loop.ExogenousInterval.String()},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, WidthMax: 22, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(w)
}

// PrintStatus renders the current loop status as a console table
func (g *Guard) PrintStatus(w io.Writer) {
	st := g.Status()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK GUARD STATUS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Portfolio Value", fmt.Sprintf("$%.2f", st.PortfolioValue)},
		{"📊 Positions", fmt.Sprintf("%d", st.Positions)},
		{"🔄 Leverage", fmt.Sprintf("%.2fx", st.LeverageRatio)},
		{"📉 Risk Score", fmt.Sprintf("$%.2f (%.2f%%)", st.RiskScore, st.RiskFraction*100)},
		{"📈 Daily Max Risk", fmt.Sprintf("$%.2f", st.DailyMaxRisk)},
	})

	t.AppendSeparator()

	tradingState := "🟢 ENABLED"
	if !st.Breaker.TradingEnabled {
		tradingState = "🔴 STOPPED"
	}
	entriesState := "🟢 ALLOWED"
	if !st.Breaker.NewEntriesAllowed {
		entriesState = "🟡 BLOCKED"
	}
	t.AppendRows([]table.Row{
		{"🚦 Breaker Level", st.Breaker.EffectiveLevel.String()},
		{"💱 Trading", tradingState},
		{"🆕 New Entries", entriesState},
		{"🚨 Emergency Mode", fmt.Sprintf("%v", st.Breaker.EmergencyMode)},
		{"📅 Daily Trades", fmt.Sprintf("%d", st.Breaker.DailyTrades)},
		{"📏 Max Drawdown", fmt.Sprintf("%.2f%%", st.Breaker.MaxDrawdown*100)},
	})

	t.AppendSeparator()

	for _, lvl := range st.Breaker.Levels {
		state := "idle"
		if lvl.Triggered {
			state = fmt.Sprintf("triggered at %s", lvl.TriggeredAt.Format("15:04:05"))
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("   %s", lvl.Level),
			fmt.Sprintf("%s (trips: %d, cooling: %s)", state, lvl.TriggerCount, lvl.Cooling),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, WidthMax: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(w)
}
