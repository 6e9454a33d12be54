package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/service/goal/navigation"
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func printTurn(w io.Writer, t goal.Turn, now time.Time) {
	fmt.Fprintf(w, "[%s] %s: %s", shortID(t.ID), navigation.Label(t), navigation.Title(t))
	if len(t.Versions) > 1 {
		fmt.Fprintf(w, "  (version %d/%d)", t.CurrentVersionIndex+1, len(t.Versions))
	}
	fmt.Fprintln(w)

	for _, agent := range t.Agents {
		fmt.Fprintf(w, "  %s  %s  %.1fs\n", agent.ModelID, agent.Status, agent.Metrics.Elapsed(now).Seconds())
		if agent.Result == nil {
			continue
		}
		if msg := strings.TrimSpace(agent.Result.Message); msg != "" {
			fmt.Fprintf(w, "    %s\n", msg)
		}
		for i, step := range agent.Result.Steps {
			fmt.Fprintf(w, "    %d. %s", i+1, step.Step)
			if step.Complexity > 0 {
				fmt.Fprintf(w, "  (complexity %g)", step.Complexity)
			}
			fmt.Fprintln(w)
			if d := strings.TrimSpace(step.Description); d != "" {
				fmt.Fprintf(w, "       %s\n", d)
			}
		}
	}
}

func printTree(w io.Writer, nodes []*goal.TreeNode, depth int) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", depth)
		title := navigation.CleanGoalTitle(n.Title)
		if n.IsVirtual() {
			fmt.Fprintf(w, "%s- %s %s\n", indent, n.Label, title)
		} else {
			fmt.Fprintf(w, "%s* %s %s [%s]\n", indent, n.Label, title, shortID(n.TurnID))
		}
		printTree(w, n.Children, depth+1)
	}
}

func printCrumbs(w io.Writer, crumbs []navigation.Crumb) {
	parts := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Label, c.Title))
	}
	fmt.Fprintln(w, strings.Join(parts, " > "))
}

func printHistory(w io.Writer, items []goal.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No saved goals")
		return
	}
	for _, item := range items {
		fmt.Fprintf(w, "%s  %s  %s\n", item.ID, item.Date.Local().Format("2006-01-02 15:04"), item.Goal)
	}
}

func printModels(w io.Writer, models []goal.ModelInfo) {
	for _, m := range models {
		fmt.Fprintf(w, "%-45s %-30s %s\n", m.ID, m.Name, m.Provider)
	}
}
