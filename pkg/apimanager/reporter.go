package apimanager

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Summarize buckets per-API results into a RunSummary. Unchanged decisions
// pass through untouched; every decision that produced an executor outcome
// lands in the bucket matching its tag.
func Summarize(environment string, decisions []SyncDecision, outcomes []DeploymentOutcome, duration time.Duration, dryRun bool) *RunSummary {
	summary := &RunSummary{
		Environment: environment,
		Duration:    duration,
		DryRun:      dryRun,
	}

	for _, decision := range decisions {
		if decision.Action == ActionUnchanged {
			summary.Unchanged = append(summary.Unchanged, DeploymentOutcome{
				ApiID:  decision.ApiID,
				Status: StatusUnchanged,
			})
		}
	}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case StatusDeployed:
			summary.Deployed = append(summary.Deployed, outcome)
		case StatusDeleted:
			summary.Deleted = append(summary.Deleted, outcome)
		case StatusSkipped:
			summary.Skipped = append(summary.Skipped, outcome)
		case StatusUnchanged:
			summary.Unchanged = append(summary.Unchanged, outcome)
		case StatusFailed:
			summary.Failed = append(summary.Failed, outcome)
		}
	}

	summary.Total = len(summary.Deployed) + len(summary.Unchanged) + len(summary.Deleted) +
		len(summary.Skipped) + len(summary.Failed)
	return summary
}

// ExitCode encodes success for automation: non-zero if and only if any per-API
// operation failed. A dry run exits 0 regardless of discovered validation
// failures, since nothing was attempted.
func (s *RunSummary) ExitCode() int {
	if s.DryRun {
		return 0
	}
	if len(s.Failed) > 0 {
		return 1
	}
	return 0
}

// Headline is the one-line operator summary. An all-Unchanged run and an
// all-Deployed run both exit 0 but mean different things, so they get
// distinct lines.
func (s *RunSummary) Headline() string {
	switch {
	case s.Total == 0:
		return fmt.Sprintf("No APIs processed for environment '%s'.", s.Environment)
	case len(s.Failed) > 0:
		return fmt.Sprintf("Run for environment '%s' completed with %d failure(s).", s.Environment, len(s.Failed))
	case len(s.Unchanged) == s.Total:
		return fmt.Sprintf("All %d API(s) in environment '%s' already up to date, nothing to deploy.", s.Total, s.Environment)
	case len(s.Deployed) == s.Total:
		return fmt.Sprintf("All %d API(s) in environment '%s' deployed successfully.", s.Total, s.Environment)
	case len(s.Deleted) > 0:
		return fmt.Sprintf("Run for environment '%s' completed: %d deleted, %d skipped.", s.Environment, len(s.Deleted), len(s.Skipped))
	case len(s.Skipped) > 0 && len(s.Deployed) == 0:
		return fmt.Sprintf("Run for environment '%s' completed: %d skipped, %d unchanged.", s.Environment, len(s.Skipped), len(s.Unchanged))
	default:
		return fmt.Sprintf("Run for environment '%s' completed: %d deployed, %d unchanged.", s.Environment, len(s.Deployed), len(s.Unchanged))
	}
}

// Render produces the human-readable run report: the counts table followed by
// an itemized line for every non-Unchanged API. The exit code alone encodes
// success for automation; this output is for the operator.
func (s *RunSummary) Render() string {
	var b strings.Builder
	b.WriteString(s.Headline())
	b.WriteString("\n\n")

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "environment\t%s\n", s.Environment)
	fmt.Fprintf(tw, "total\t%d\n", s.Total)
	if len(s.Deployed) > 0 || len(s.Unchanged) > 0 {
		fmt.Fprintf(tw, "deployed\t%d\n", len(s.Deployed))
		fmt.Fprintf(tw, "unchanged\t%d\n", len(s.Unchanged))
	}
	if len(s.Deleted) > 0 || len(s.Skipped) > 0 {
		fmt.Fprintf(tw, "deleted\t%d\n", len(s.Deleted))
		fmt.Fprintf(tw, "skipped\t%d\n", len(s.Skipped))
	}
	fmt.Fprintf(tw, "failed\t%d\n", len(s.Failed))
	fmt.Fprintf(tw, "duration\t%s\n", s.Duration.Round(time.Millisecond))
	_ = tw.Flush()

	itemize := func(label string, outcomes []DeploymentOutcome) {
		for _, o := range outcomes {
			line := fmt.Sprintf("\n%s\t%s", label, o.ApiID)
			if o.Reason != "" {
				line += "\t" + o.Reason
			}
			if o.Err != nil {
				line += "\t" + o.Err.Error()
			}
			b.WriteString(line)
		}
	}
	itemize("DEPLOYED", s.Deployed)
	itemize("DELETED", s.Deleted)
	itemize("SKIPPED", s.Skipped)
	itemize("FAILED", s.Failed)
	b.WriteString("\n")

	return b.String()
}
