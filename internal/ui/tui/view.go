package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/state"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

// RenderResult renders the outcome of an apply.
func RenderResult(res *deploy.Result) string {
	var b strings.Builder

	renderHeader(&b, res)
	renderResources(&b, res)
	if len(res.Outputs) > 0 {
		renderOutputs(&b, res.Outputs)
	}
	renderErrors(&b, res)

	footer := fmt.Sprintf("Finished in %s", formatDuration(res.Duration))
	if res.StateLocation != "" {
		footer += fmt.Sprintf(", state saved to %s", res.StateLocation)
	}
	b.WriteString(footerStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func renderHeader(b *strings.Builder, res *deploy.Result) {
	b.WriteString(titleStyle.Render(fmt.Sprintf("eksforge: %s", res.Cluster)))
	b.WriteString(" ")
	if res.Succeeded() {
		b.WriteString(readyStyle.Render("Ready"))
	} else {
		ready := 0
		for _, r := range res.Resources {
			if r.Status == graph.StatusReady {
				ready++
			}
		}
		b.WriteString(failedStyle.Render(fmt.Sprintf("Incomplete (%d/%d ready)", ready, len(res.Resources))))
	}
	b.WriteString("\n")
}

func renderResources(b *strings.Builder, res *deploy.Result) {
	b.WriteString(sectionStyle.Render("  Resources"))
	b.WriteString("\n")

	width := 0
	for _, r := range res.Resources {
		width = max(width, len(r.ID))
	}
	for _, r := range res.Resources {
		icon, style := statusIcon(r.Status)
		line := fmt.Sprintf("  %s %-*s", style(icon), width, r.ID)
		if r.Action != "" {
			line += " " + dimStyle.Render(string(r.Action))
		}
		if r.Duration > 0 {
			line += " " + dimStyle.Render(formatDuration(r.Duration))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func renderOutputs(b *strings.Builder, outputs map[string]string) {
	b.WriteString(sectionStyle.Render("  Outputs"))
	b.WriteString("\n")

	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s = %s\n", k, outputs[k])
	}
}

func renderErrors(b *strings.Builder, res *deploy.Result) {
	var lines []string
	for _, r := range res.Resources {
		if r.Status != graph.StatusFailed {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s: %s", failedStyle.Render(r.Reason), r.ID, r.Error))
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render("  Errors"))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
}

// RenderPlan renders a plan: apply levels and drift per resource.
func RenderPlan(plan *deploy.PlanReport) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("eksforge plan: %s", plan.Cluster)))
	b.WriteString("\n")

	actions := make(map[string]state.Action, len(plan.Changes))
	for _, c := range plan.Changes {
		actions[c.ID] = c.Action
	}

	b.WriteString(sectionStyle.Render("  Apply order"))
	b.WriteString("\n")
	for i, level := range plan.Levels {
		fmt.Fprintf(&b, "  %s\n", dimStyle.Render(fmt.Sprintf("level %d", i+1)))
		for _, id := range level {
			fmt.Fprintf(&b, "    %s %s\n", actionStyle(actions[id])(actionSymbol(actions[id])), id)
		}
	}

	var orphans []string
	for _, c := range plan.Changes {
		if c.Action == state.ActionOrphaned {
			orphans = append(orphans, c.ID)
		}
	}
	if len(orphans) > 0 {
		b.WriteString(sectionStyle.Render("  No longer declared"))
		b.WriteString("\n")
		for _, id := range orphans {
			fmt.Fprintf(&b, "    %s %s\n", warningStyle.Render(warnMark), id)
		}
	}

	b.WriteString(footerStyle.Render(fmt.Sprintf("Plan: %d to create, %d to update, %d unchanged, %d orphaned",
		state.Count(plan.Changes, state.ActionCreate), state.Count(plan.Changes, state.ActionUpdate),
		state.Count(plan.Changes, state.ActionUnchanged), len(orphans))))
	b.WriteString("\n")
	return b.String()
}

func statusIcon(s graph.Status) (string, styleFunc) {
	switch s {
	case graph.StatusReady:
		return checkMark, sf(readyStyle)
	case graph.StatusFailed:
		return crossMark, sf(failedStyle)
	case graph.StatusBlocked, graph.StatusCancelled:
		return blocked, sf(warningStyle)
	default:
		return warnMark, sf(dimStyle)
	}
}

func actionSymbol(a state.Action) string {
	switch a {
	case state.ActionCreate:
		return "+"
	case state.ActionUpdate:
		return "~"
	case state.ActionOrphaned:
		return "-"
	default:
		return "="
	}
}

func actionStyle(a state.Action) styleFunc {
	switch a {
	case state.ActionCreate:
		return sf(readyStyle)
	case state.ActionUpdate:
		return sf(warningStyle)
	case state.ActionOrphaned:
		return sf(failedStyle)
	default:
		return sf(dimStyle)
	}
}

// formatDuration formats a duration in a compact human-readable form.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func renderApplyView(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("eksforge apply: %s", m.ClusterName)))
	if m.Region != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (%s)", m.Region)))
	}
	b.WriteString("\n")
	renderProgressBar(&b, m)

	width := 0
	for _, r := range m.Nodes {
		width = max(width, len(r.ID))
	}
	for _, r := range m.Nodes {
		icon, style, detail := rowState(m, r)
		fmt.Fprintf(&b, "  %s %-*s  %s\n", style(icon), width, r.ID, dimStyle.Render(detail))
	}

	footer := fmt.Sprintf("elapsed: %s", formatDuration(time.Since(m.StartTime)))
	switch {
	case m.Done:
	case m.Interrupted:
		footer += "  |  " + warningStyle.Render("cancelling, waiting for running resources") + "  |  q: quit now"
	default:
		footer += "  |  q: cancel"
	}
	b.WriteString(footerStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func renderProgressBar(b *strings.Builder, m Model) {
	total := len(m.Nodes)
	done := m.finished()
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := 0
	if total > 0 {
		filled = min(barWidth*done/total, barWidth)
	}
	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(b, "  %s %d/%d\n", bar, done, total)
}

// rowState picks the icon, style and trailing detail of one node row.
func rowState(m Model, r NodeRow) (string, styleFunc, string) {
	switch {
	case r.Status != "":
		icon, style := statusIcon(r.Status)
		if r.Status == graph.StatusReady {
			return icon, style, formatDuration(r.Duration)
		}
		if r.Err != nil {
			return icon, style, fmt.Sprintf("%s: %v", r.Status, r.Err)
		}
		return icon, style, string(r.Status)
	case r.Active:
		return currentSpinner(m.SpinnerFrame), sf(activeStyle), "applying"
	default:
		return pending, sf(dimStyle), "waiting for prerequisites"
	}
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}
