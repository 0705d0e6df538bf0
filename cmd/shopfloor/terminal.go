package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/shopfloor/client"
	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/storage"
)

// terminalCmds returns the client-side subcommands a workshop terminal or an
// operator shell uses against a running server.
func terminalCmds() []*cobra.Command {
	var serverURL string

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			jobs, err := c.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(renderJobList(jobs))
			return nil
		},
	}
	jobsCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")

	var watchInterval time.Duration
	jobCmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a job's cutting progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			return showJob(cmd.Context(), c, args[0], watchInterval)
		},
	}
	jobCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	jobCmd.Flags().DurationVar(&watchInterval, "watch", 0, "Refresh every interval (0 = print once)")

	return []*cobra.Command{jobsCmd, jobCmd}
}

func showJob(ctx context.Context, c *client.Client, jobID string, watch time.Duration) error {
	detail, err := c.GetJobDetail(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Print(renderJobDetail(detail))

	if watch <= 0 {
		return nil
	}

	view := client.NewJobView(c)
	view.Replace(detail)
	sync := client.NewSynchronizer(c, view, watch, nil)
	sync.OnChange = func() {
		fmt.Print("\n", renderJobDetail(view.Detail()))
	}
	return sync.Run(ctx)
}

func renderJobList(jobs []*cutlist.Job) string {
	if len(jobs) == 0 {
		return "No jobs.\n"
	}

	// Most recently updated first
	sorted := make([]*cutlist.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s  %-12s  %-20s  %s\n", "JOB", "STATUS", "CUSTOMER", "UPDATED"))
	for _, j := range sorted {
		sb.WriteString(fmt.Sprintf("%-40s  %-12s  %-20s  %s\n",
			truncate(j.Name, 40),
			j.Status,
			truncate(j.Customer, 20),
			j.UpdatedAt.Format("2006-01-02 15:04")))
	}
	sb.WriteString(fmt.Sprintf("\n%d job(s). IDs via the API; run 'shopfloor job <id>' for detail.\n", len(sorted)))
	return sb.String()
}

func renderJobDetail(d *storage.JobDetail) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s  [%s]  %s\n", d.Name, d.Status, progressBar(d.Progress)))
	if d.Customer != "" {
		sb.WriteString(fmt.Sprintf("Customer: %s\n", d.Customer))
	}
	sb.WriteString(fmt.Sprintf("Time on job: %s\n", (time.Duration(d.TotalDurationSeconds) * time.Second).String()))

	for _, cl := range d.Cutlists {
		sb.WriteString(fmt.Sprintf("\n  %s  %s\n", cl.Name, progressBar(cl.Progress)))
		for _, m := range cl.Materials {
			sb.WriteString(fmt.Sprintf("    %-20s %2d sheets  %s\n", truncate(m.Color, 20), m.TotalSheets, progressBar(m.Overall)))
			for _, rb := range m.Recuts {
				sb.WriteString(fmt.Sprintf("      recut x%d (%s)  %s\n", rb.Quantity, rb.Reason, progressBar(rb.Progress())))
			}
		}
	}

	if len(d.Checklist) > 0 {
		sb.WriteString("\n  Checklist:\n")
		for _, item := range d.Checklist {
			mark := "[ ]"
			if item.Done {
				mark = "[x]"
			}
			sb.WriteString(fmt.Sprintf("    %s %s\n", mark, item.Label))
		}
	}
	return sb.String()
}

// progressBar renders a 20-cell bar with the percentage, e.g.
// "[##########----------] 50% (5/10)".
func progressBar(p cutlist.Progress) string {
	const width = 20
	filled := 0
	if p.EffectiveTotal > 0 {
		filled = width * p.Completed / p.EffectiveTotal
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("[%s] %d%% (%d/%d)", bar, p.Percentage, p.Completed, p.EffectiveTotal)
}

func truncate(s string, n int) string {
	// Cut on runes so a multi-byte name never yields invalid UTF-8.
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
