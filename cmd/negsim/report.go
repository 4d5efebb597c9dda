package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/talgya/compute-market/internal/agents"
	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/resource"
)

func writeAgentTable(w io.Writer, sim *engine.Simulator) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Agent", "Strategy", "Wealth", "GPU", "CPU", "Memory", "Reputation", "Deals", "Last deal", "Status"})
	table.SetAutoWrapText(false)

	untrusted := make(map[string]bool)
	for _, id := range sim.Untrusted() {
		untrusted[id] = true
	}
	for _, a := range sim.Agents() {
		status := ""
		if untrusted[a.ID] {
			status = "isolated"
		}
		last := "-"
		if recent := a.RecentDeals(1); len(recent) == 1 {
			last = lastDeal(a.ID, recent[0])
		}
		table.Append([]string{
			a.ID,
			a.Strategy.Name(),
			humanize.CommafWithDigits(a.Wealth.InexactFloat64(), 2),
			humanize.CommafWithDigits(a.Holdings.Float(resource.GPU), 2),
			humanize.CommafWithDigits(a.Holdings.Float(resource.CPU), 2),
			humanize.CommafWithDigits(a.Holdings.Float(resource.Memory), 2),
			strconv.FormatFloat(sim.Reputation().Score(a.ID), 'f', 3, 64),
			humanize.Comma(int64(len(a.Deals))),
			last,
			status,
		})
	}
	table.Render()
}

// lastDeal describes a deal from one party's side, e.g.
// "bought 10 gpu @ 1.000 (round 3)".
func lastDeal(id string, d agents.Deal) string {
	verb := "sold"
	if d.Buyer == id {
		verb = "bought"
	}
	s := fmt.Sprintf("%s %s %s @ %s (round %d)", verb, d.Quantity.String(), d.Resource, d.UnitPrice.StringFixed(3), d.Round)
	if d.Status == agents.StatusDefaulted {
		s += ", defaulted"
	}
	return s
}

// writeRoundTable prints every nth round plus the last one.
func writeRoundTable(w io.Writer, history []engine.RoundResult, every int) {
	if len(history) == 0 {
		return
	}
	every = max(every, 1)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Round", "Negotiations", "Deals", "Defaults", "Timeouts", "GPU price", "CPU price", "Memory price"})
	for i, r := range history {
		if r.Round%every != 0 && i != len(history)-1 {
			continue
		}
		table.Append([]string{
			strconv.Itoa(r.Round),
			strconv.Itoa(r.Negotiations),
			strconv.Itoa(r.Completed),
			strconv.Itoa(r.Defaulted),
			strconv.Itoa(r.TimedOut),
			price(r.AvgPrice[resource.GPU]),
			price(r.AvgPrice[resource.CPU]),
			price(r.AvgPrice[resource.Memory]),
		})
	}
	table.Render()
}

func price(p float64) string {
	if p == 0 {
		return "-"
	}
	return strconv.FormatFloat(p, 'f', 3, 64)
}

func writeTotals(w io.Writer, sim *engine.Simulator) {
	var negotiations, completed, defaulted, violations int
	for _, r := range sim.History() {
		negotiations += r.Negotiations
		completed += r.Completed
		defaulted += r.Defaulted
		violations += r.Violations
	}
	fmt.Fprintf(w, "%s negotiations, %s deals, %s defaults, %s protocol violations over %d rounds\n",
		humanize.Comma(int64(negotiations)),
		humanize.Comma(int64(completed)),
		humanize.Comma(int64(defaulted)),
		humanize.Comma(int64(violations)),
		sim.Round(),
	)
	if iso := sim.Untrusted(); len(iso) > 0 {
		fmt.Fprintf(w, "isolated: %v\n", iso)
	}
}
