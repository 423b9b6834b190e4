package cli

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/warden-io/warden/pkg/audit"
)

func newAuditCommand() *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "List audit log entries",
		Flags:       flag.NewFlagSet("audit", flag.ExitOnError),
		Run:         runAudit,
	}

	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")
	cmd.Flags.String("handle", "", "Filter by actor handle")
	cmd.Flags.String("category", "", "Filter by category (AUTH, CONFIG, ADMIN, SECURITY)")
	cmd.Flags.String("action", "", "Filter by action")
	cmd.Flags.String("actions", "", "Filter by several actions (comma-separated)")
	cmd.Flags.Int("limit", 0, "Maximum entries to return")
	cmd.Flags.Int("offset", 0, "Entries to skip")

	return cmd
}

func runAudit(args []string) error {
	cmd := newAuditCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	query := url.Values{}
	for _, name := range []string{"handle", "category", "action", "actions", "limit", "offset"} {
		if v := cmd.Flags.Lookup(name).Value.String(); v != "" && v != "0" {
			query.Set(name, v)
		}
	}

	var body struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := c.getJSON("/api/v1/audit?"+query.Encode(), &body); err != nil {
		return err
	}

	for _, e := range body.Entries {
		fmt.Printf("%s  %-10s %-24s %-8s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Category, e.Action, e.Role, e.Description)
	}
	fmt.Printf("\n%d entries\n", body.Count)
	return nil
}

func newExportCommand() *Command {
	cmd := &Command{
		Name:        "export",
		Description: "Export audit log entries (owner only)",
		Flags:       flag.NewFlagSet("export", flag.ExitOnError),
		Run:         runExport,
	}

	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")
	cmd.Flags.String("format", "json", "Export format (json or csv)")
	cmd.Flags.String("out", "", "Output file (default stdout)")

	return cmd
}

func runExport(args []string) error {
	cmd := newExportCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	format := cmd.Flags.Lookup("format").Value.String()
	data, err := c.do(http.MethodGet, "/api/v1/audit/export?format="+url.QueryEscape(format), nil)
	if err != nil {
		return err
	}

	if out := cmd.Flags.Lookup("out").Value.String(); out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("Exported audit log to %s\n", out)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func newStatsCommand() *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show audit log statistics",
		Flags:       flag.NewFlagSet("stats", flag.ExitOnError),
		Run:         runStats,
	}

	cmd.Flags.String("server", "", "Admin API URL (default $WARDEN_SERVER or http://localhost:8080)")
	cmd.Flags.String("as", "", "Acting handle (default $WARDEN_AS)")

	return cmd
}

func runStats(args []string) error {
	cmd := newStatsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("as").Value.String())
	if err != nil {
		return err
	}

	var stats audit.Stats
	if err := c.getJSON("/api/v1/audit/stats", &stats); err != nil {
		return err
	}

	fmt.Printf("Total entries:   %d\n", stats.Total)
	fmt.Printf("Last 24 hours:   %d\n", stats.Last24Hours)
	fmt.Printf("Last 7 days:     %d\n", stats.Last7Days)
	fmt.Printf("\nBy category:\n")
	for category, count := range stats.ByCategory {
		fmt.Printf("  %-10s %d\n", category, count)
	}
	fmt.Printf("\nBy action (last %d entries):\n", stats.SampleSize)
	for action, count := range stats.ByAction {
		fmt.Printf("  %-24s %d\n", action, count)
	}
	return nil
}
