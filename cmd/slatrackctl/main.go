// Package main is the entrypoint for the slatrackctl CLI.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MacJediWizard/slatrack/internal/config"
	"github.com/MacJediWizard/slatrack/internal/models"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// client talks to a slatrack server's admin API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string) *client {
	return &client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one JSON request and decodes the response into out when the
// server answers 2xx.
func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var serverURL, token string

	rootCmd := &cobra.Command{
		Use:          "slatrackctl",
		Short:        "Administer a slatrack SLA tracking server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SLATRACK_SERVER", "http://localhost:8080"), "slatrack server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("SLATRACK_TOKEN"), "admin API token")

	mkClient := func() *client { return newClient(serverURL, token) }

	rootCmd.AddCommand(
		newVersionCmd(),
		newRulesCmd(mkClient),
		newItemsCmd(mkClient),
		newComplianceCmd(mkClient),
		newEvaluateCmd(mkClient),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slatrackctl %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newRulesCmd(mkClient func() *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage SLA rules",
	}

	cmd.AddCommand(
		newRulesListCmd(mkClient),
		newRulesImportCmd(mkClient),
		newRulesExportCmd(mkClient),
		newRulesSetDefaultCmd(mkClient),
	)

	return cmd
}

func newRulesListCmd(mkClient func() *client) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an org's SLA rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("invalid org ID: %w", err)
			}

			var resp models.SLARulesResponse
			if err := mkClient().do("GET", "/api/v1/orgs/"+orgID+"/sla-rules", nil, &resp); err != nil {
				return err
			}

			if len(resp.Rules) == 0 {
				fmt.Println("No rules configured.")
				return nil
			}

			for _, r := range resp.Rules {
				marker := " "
				if r.IsDefault {
					marker = "*"
				}
				state := "active"
				if !r.Active {
					state = "inactive"
				}
				scope := r.InfoType + "/" + string(r.Priority)
				if r.IsDefault {
					scope = "default"
				}
				if r.Channel != nil {
					scope += "/" + string(*r.Channel)
				}
				fmt.Printf("%s %s  %-30s %-25s response %s, resolution %s, %d escalation levels (%s)\n",
					marker, r.ID, r.Name, scope, r.ResponseTime(), r.ResolutionTime(), len(r.EscalationLevels), state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newRulesImportCmd(mkClient func() *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <seed-file>",
		Short: "Import rules and business hours from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := config.LoadRuleSeedFile(args[0])
			if err != nil {
				return err
			}

			c := mkClient()
			org := set.OrgID.String()

			// Create business hours first and keep the server-assigned IDs
			// so rules can reference them.
			hoursIDs := make(map[uuid.UUID]uuid.UUID, len(set.BusinessHours))
			for _, hours := range set.BusinessHours {
				req := models.CreateBusinessHoursRequest{
					Name:        hours.Name,
					Timezone:    hours.Timezone,
					StartMinute: hours.StartMinute,
					EndMinute:   hours.EndMinute,
					Enabled:     &hours.Enabled,
				}
				for _, d := range hours.WorkingDays {
					req.WorkingDays = append(req.WorkingDays, int(d))
				}

				var created models.BusinessHoursConfig
				if err := c.do("POST", "/api/v1/orgs/"+org+"/business-hours", req, &created); err != nil {
					return fmt.Errorf("create business hours %q: %w", hours.Name, err)
				}
				hoursIDs[hours.ID] = created.ID
				fmt.Printf("Created business hours %q (%s)\n", created.Name, created.ID)
			}

			for _, rule := range set.Rules {
				req := models.CreateSLARuleRequest{
					Name:                  rule.Name,
					Description:           rule.Description,
					InfoType:              rule.InfoType,
					Priority:              rule.Priority,
					Channel:               rule.Channel,
					ResponseTimeMinutes:   rule.ResponseTimeMinutes,
					ResolutionTimeMinutes: rule.ResolutionTimeMinutes,
					IsDefault:             rule.IsDefault,
				}
				if rule.BusinessHoursID != nil {
					if mapped, ok := hoursIDs[*rule.BusinessHoursID]; ok {
						req.BusinessHoursID = &mapped
					}
				}
				for _, lvl := range rule.EscalationLevels {
					req.EscalationLevels = append(req.EscalationLevels, models.EscalationLevelRequest{
						Level:                lvl.Level,
						EscalateAfterMinutes: lvl.EscalateAfterMinutes,
						Target:               lvl.Target,
						NotifyChannels:       lvl.NotifyChannels,
					})
				}

				var created models.SLARule
				if err := c.do("POST", "/api/v1/orgs/"+org+"/sla-rules", req, &created); err != nil {
					return fmt.Errorf("create rule %q: %w", rule.Name, err)
				}
				fmt.Printf("Created rule %q (%s)\n", created.Name, created.ID)
			}

			fmt.Printf("Imported %d rules and %d business hours configs for org %s\n",
				len(set.Rules), len(set.BusinessHours), org)
			return nil
		},
	}

	return cmd
}

func newRulesExportCmd(mkClient func() *client) *cobra.Command {
	var orgID, outFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an org's rules as a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("invalid org ID: %w", err)
			}

			c := mkClient()

			var rules models.SLARulesResponse
			if err := c.do("GET", "/api/v1/orgs/"+orgID+"/sla-rules", nil, &rules); err != nil {
				return err
			}
			var hours models.BusinessHoursResponse
			if err := c.do("GET", "/api/v1/orgs/"+orgID+"/business-hours", nil, &hours); err != nil {
				return err
			}

			seed := buildSeedFile(orgID, rules.Rules, hours.Configs)
			data, err := yaml.Marshal(seed)
			if err != nil {
				return fmt.Errorf("marshal seed file: %w", err)
			}

			if outFile == "" || outFile == "-" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(outFile, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			fmt.Printf("Exported %d rules to %s\n", len(rules.Rules), outFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().StringVarP(&outFile, "output", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

// buildSeedFile converts API responses back into the seed YAML layout.
func buildSeedFile(orgID string, rules []models.SLARule, hours []models.BusinessHoursConfig) config.RuleSeedFile {
	seed := config.RuleSeedFile{OrgID: orgID}

	hoursNames := make(map[uuid.UUID]string, len(hours))
	for _, h := range hours {
		hoursNames[h.ID] = h.Name
		enabled := h.Enabled
		seed.BusinessHours = append(seed.BusinessHours, config.BusinessHoursSeed{
			Name:        h.Name,
			Timezone:    h.Timezone,
			WorkingDays: weekdaysToInts(h.WorkingDays),
			Start:       minutesToClock(h.StartMinute),
			End:         minutesToClock(h.EndMinute),
			Enabled:     &enabled,
		})
	}

	for _, r := range rules {
		rs := config.RuleSeed{
			Name:           r.Name,
			Description:    r.Description,
			InfoType:       r.InfoType,
			Priority:       string(r.Priority),
			ResponseTime:   fmt.Sprintf("%dm", r.ResponseTimeMinutes),
			ResolutionTime: fmt.Sprintf("%dm", r.ResolutionTimeMinutes),
			Default:        r.IsDefault,
		}
		if r.Channel != nil {
			rs.Channel = string(*r.Channel)
		}
		if r.BusinessHoursID != nil {
			rs.BusinessHours = hoursNames[*r.BusinessHoursID]
		}
		for _, lvl := range r.EscalationLevels {
			es := config.EscalationSeed{
				Level:  lvl.Level,
				After:  fmt.Sprintf("%dm", lvl.EscalateAfterMinutes),
				Target: lvl.Target,
			}
			for _, ch := range lvl.NotifyChannels {
				es.Notify = append(es.Notify, string(ch))
			}
			rs.Escalations = append(rs.Escalations, es)
		}
		seed.Rules = append(seed.Rules, rs)
	}

	return seed
}

func weekdaysToInts(days []time.Weekday) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}

func minutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func newRulesSetDefaultCmd(mkClient func() *client) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "set-default <rule-id>",
		Short: "Promote a rule to the org's default fallback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("invalid org ID: %w", err)
			}
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid rule ID: %w", err)
			}

			path := "/api/v1/orgs/" + orgID + "/sla-rules/" + args[0] + "/actions/set-default"
			if err := mkClient().do("POST", path, nil, nil); err != nil {
				return err
			}
			fmt.Printf("Rule %s is now the default for org %s\n", args[0], orgID)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newItemsCmd(mkClient func() *client) *cobra.Command {
	var orgID, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List work items with their SLA state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("invalid org ID: %w", err)
			}

			path := fmt.Sprintf("/api/v1/orgs/%s/work-items?limit=%d", orgID, limit)
			if status != "" {
				path += "&status=" + status
			}

			var resp models.WorkItemStatesResponse
			if err := mkClient().do("GET", path, nil, &resp); err != nil {
				return err
			}

			if len(resp.Items) == 0 {
				fmt.Println("No matching work items.")
				return nil
			}

			for _, it := range resp.Items {
				slaStatus := string(models.SLAUnevaluated)
				due := ""
				if it.State != nil {
					slaStatus = string(it.State.CurrentStatus)
					if it.State.ResolutionDueAt != nil {
						due = "resolution due " + it.State.ResolutionDueAt.Format(time.RFC3339)
					}
					if it.State.HighestEscalationFired > 0 {
						due += fmt.Sprintf(" (escalated L%d to %s)", it.State.HighestEscalationFired, it.State.EscalatedTo)
					}
				}
				fmt.Printf("%s  %-12s %-10s %-40s %s\n",
					it.WorkItem.ID, slaStatus, it.WorkItem.Priority, truncate(it.WorkItem.Subject, 40), due)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by SLA status (on_track, at_risk, breached, unevaluated)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum items to list")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func newComplianceCmd(mkClient func() *client) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Show an org's SLA compliance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("invalid org ID: %w", err)
			}

			var summary models.ComplianceSummary
			if err := mkClient().do("GET", "/api/v1/orgs/"+orgID+"/compliance", nil, &summary); err != nil {
				return err
			}

			fmt.Printf("Org:             %s\n", summary.OrgID)
			fmt.Printf("Open items:      %d\n", summary.TotalItems)
			fmt.Printf("  on track:      %d\n", summary.OnTrack)
			fmt.Printf("  at risk:       %d\n", summary.AtRisk)
			fmt.Printf("  breached:      %d\n", summary.Breached)
			fmt.Printf("  unevaluated:   %d\n", summary.Unevaluated)
			fmt.Printf("  escalated:     %d\n", summary.Escalated)
			fmt.Printf("Compliance rate: %.1f%%\n", summary.ComplianceRate*100)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newEvaluateCmd(mkClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Trigger an immediate evaluation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats struct {
				Evaluated   int    `json:"evaluated"`
				Persisted   int    `json:"persisted"`
				Escalations int    `json:"escalations"`
				Conflicts   int    `json:"conflicts"`
				Skipped     int    `json:"skipped"`
				Errors      int    `json:"errors"`
				Duration    string `json:"duration"`
			}
			if err := mkClient().do("POST", "/api/v1/evaluations/actions/run", nil, &stats); err != nil {
				return err
			}

			fmt.Printf("Evaluation pass finished in %s\n", stats.Duration)
			fmt.Printf("  evaluated:   %d\n", stats.Evaluated)
			fmt.Printf("  persisted:   %d\n", stats.Persisted)
			fmt.Printf("  escalations: %d\n", stats.Escalations)
			fmt.Printf("  conflicts:   %d\n", stats.Conflicts)
			fmt.Printf("  skipped:     %d\n", stats.Skipped)
			fmt.Printf("  errors:      %d\n", stats.Errors)
			return nil
		},
	}
}
