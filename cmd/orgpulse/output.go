package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nhle/orgpulse/internal/metrics"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
	orgsync "github.com/nhle/orgpulse/internal/sync"
	"github.com/nhle/orgpulse/internal/theme"
)

// render prints v as JSON when --json is set, otherwise calls text.
func (c *cli) render(w io.Writer, v any, text func(io.Writer)) error {
	if c.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func ago(t *time.Time) string {
	if t == nil || t.IsZero() {
		return theme.MutedStyle.Render("never")
	}
	return humanize.Time(*t)
}

func itoa(n int) string {
	return humanize.Comma(int64(n))
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeRunResults(w io.Writer, results []orgsync.RunResult) {
	for _, r := range results {
		label := theme.SourceLabelStyle(string(r.Source)).Render(string(r.Source))
		switch {
		case r.Success:
			fmt.Fprintf(w, "%s %s processed %s, created %s, skipped %s, errors %s %s\n",
				label, theme.SuccessStyle.Render("ok"),
				itoa(r.Processed), itoa(r.Created), itoa(r.Skipped), itoa(r.Errors),
				theme.MutedStyle.Render("("+r.Duration.Round(time.Millisecond).String()+")"))
		case r.AlreadyRunning:
			fmt.Fprintf(w, "%s %s %s\n", label, theme.WarnStyle.Render("busy"), r.Message)
		default:
			fmt.Fprintf(w, "%s %s %s\n", label, theme.ErrorStyle.Render("failed"), r.Message)
		}
	}
}

func writeStates(w io.Writer, states []model.TransformState) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("Transform status"))
	for _, s := range states {
		state := theme.SuccessStyle.Render("idle")
		if s.IsRunning {
			state = theme.WarnStyle.Render("running since " + ago(s.RunStartedAt))
		}
		fmt.Fprintf(w, "\n%s %s\n", theme.SourceLabelStyle(string(s.Source)).Render(string(s.Source)), state)
		pairs := []string{
			"last run", ago(s.LastRunAt),
			"last success", ago(s.LastSuccessAt),
			"last counts", fmt.Sprintf("processed %s, created %s, skipped %s, errors %s",
				itoa(s.LastProcessed), itoa(s.LastCreated), itoa(s.LastSkipped), itoa(s.LastErrors)),
		}
		if s.LastError != "" {
			pairs = append(pairs, "last error", theme.ErrorStyle.Render(s.LastError))
		}
		fmt.Fprint(w, theme.KeyValue(pairs...))
	}
}

func writeOrphans(w io.Writer, counts []store.OrphanCount) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("Unresolved references"))
	if len(counts) == 0 {
		fmt.Fprintln(w, theme.MutedStyle.Render("no activities"))
		return
	}
	for _, o := range counts {
		fmt.Fprint(w, theme.KeyValue(string(o.Source), fmt.Sprintf("%s activities, %s without identity, %s without project",
			itoa(o.Total), itoa(o.UnresolvedActor), itoa(o.UnresolvedProject))))
	}
}

func writeIdentity(w io.Writer, id *model.Identity) {
	pairs := []string{
		"id", id.ID,
		"primary email", id.PrimaryEmail,
	}
	if len(id.AlternateEmails) > 0 {
		pairs = append(pairs, "alternate emails", strings.Join(id.AlternateEmails, ", "))
	}
	if id.DisplayName != "" {
		pairs = append(pairs, "name", id.DisplayName)
	}
	if id.GitHubLogin != "" {
		pairs = append(pairs, "github", id.GitHubLogin)
	}
	if id.SlackUserID != "" {
		pairs = append(pairs, "slack", id.SlackUserID)
	}
	if id.JiraAccountID != "" {
		pairs = append(pairs, "jira", id.JiraAccountID)
	}
	fmt.Fprint(w, theme.KeyValue(pairs...))
}

func writeProject(w io.Writer, p *model.Project) {
	status := theme.SuccessStyle.Render("active")
	if !p.IsActive {
		status = theme.MutedStyle.Render("inactive")
	}
	pairs := []string{
		"id", p.ID,
		"name", p.Name,
		"status", status,
	}
	for _, src := range model.AllSources {
		if aliases := p.Aliases[src]; len(aliases) > 0 {
			pairs = append(pairs, string(src)+" aliases", strings.Join(aliases, ", "))
		}
	}
	fmt.Fprint(w, theme.KeyValue(pairs...))
}

func windowLine(w metrics.Window) string {
	return theme.MutedStyle.Render(w.Start.Format(time.DateOnly) + " to " + w.End.Format(time.DateOnly))
}

func writeSpace(w io.Writer, m metrics.SpaceMetrics) {
	fmt.Fprintf(w, "%s %s\n", theme.HeaderStyle.Render("SPACE "+m.Email), windowLine(m.Window))
	fmt.Fprint(w, theme.KeyValue(
		"activities", fmt.Sprintf("%s (dev %s, comm %s)", itoa(m.TotalActivities), itoa(m.DevActivities), itoa(m.CommActivities)),
		"commits", itoa(m.Commits),
		"pull requests", fmt.Sprintf("%s (%s merged)", itoa(m.PullRequests), itoa(m.PullRequestsMerged)),
		"reviews", itoa(m.Reviews),
		"ticket updates", itoa(m.TicketUpdates),
		"tickets completed", itoa(m.CompletedTickets),
		"messages", itoa(m.Messages),
		"balance score", ftoa(m.ActivityBalanceScore),
		"workload variance", ftoa(m.WorkloadVariance),
		"collaborators", itoa(m.UniqueCollaborators),
		"collaboration score", ftoa(m.CollaborationScore),
		"peak hours", strings.Join(m.PeakActivityHours, ", "),
		"focus time ratio", ftoa(m.FocusTimeRatio),
	))
}

func formatDistribution(d metrics.Distribution) string {
	if d.Samples == 0 {
		return theme.MutedStyle.Render("no samples")
	}
	return fmt.Sprintf("avg %sh, p50 %sh, p90 %sh (%s samples)",
		ftoa(d.AverageHours), ftoa(d.P50Hours), ftoa(d.P90Hours), itoa(d.Samples))
}

func writeFlow(w io.Writer, m metrics.FlowMetrics) {
	fmt.Fprintf(w, "%s %s\n", theme.HeaderStyle.Render("FLOW "+m.Project), windowLine(m.Window))
	fmt.Fprint(w, theme.KeyValue(
		"created", itoa(m.CreatedItems),
		"completed", itoa(m.CompletedItems),
		"active", itoa(m.ActiveItems),
		"velocity / week", ftoa(m.VelocityPerWeek),
		"flow time", formatDistribution(m.FlowTime),
	))
	writeBreakdown(w, "by type", m.ByType)
	writeBreakdown(w, "by priority", m.ByPriority)
}

func writeBreakdown(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + itoa(counts[k])
	}
	fmt.Fprint(w, theme.KeyValue(title, strings.Join(parts, ", ")))
}

func writeDora(w io.Writer, m metrics.DoraMetrics) {
	level := func(l string) string { return theme.LevelStyle(l).Render(l) }

	fmt.Fprintf(w, "%s %s\n", theme.HeaderStyle.Render("DORA "+m.Project), windowLine(m.Window))
	mttr := theme.MutedStyle.Render("no incident data")
	if m.MTTR.Available {
		mttr = ftoa(m.MTTR.Hours) + "h"
	}
	fmt.Fprint(w, theme.KeyValue(
		"deployments", fmt.Sprintf("%s (%s/day, %s/week) %s", itoa(m.DeploymentFrequency.TotalDeployments),
			ftoa(m.DeploymentFrequency.PerDay), ftoa(m.DeploymentFrequency.PerWeek), level(m.DeploymentFrequency.Level)),
		"lead time", formatDistribution(m.LeadTime.Distribution)+" "+level(m.LeadTime.Level),
		"change failure rate", fmt.Sprintf("%s%% (%s of %s) %s", ftoa(m.ChangeFailureRate.Percentage),
			itoa(m.ChangeFailureRate.FailedDeployments), itoa(m.ChangeFailureRate.TotalDeployments), level(m.ChangeFailureRate.Level)),
		"mttr", mttr+" "+level(m.MTTR.Level),
		"commits", itoa(m.Commits),
		"pull requests", itoa(m.PullRequests),
		"reviews", itoa(m.Reviews),
	))
}
