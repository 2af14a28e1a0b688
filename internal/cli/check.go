package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentward/agentward/internal/shellcheck"
	"github.com/agentward/agentward/pkg/types"
)

func newCheckCmd() *cobra.Command {
	var (
		tenantID   string
		agentID    int64
		sourceIP   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check <command> [command...]",
		Short: "Check shell commands against the guardrail rules",
		Long: `Check one or more shell commands against the blocked and high-risk
pattern rules. Exits 0 when all commands are allowed, 1 when any is
blocked.

Examples:
  agentward check "ls -la /tmp"
  agentward check --tenant acme "rm -rf /"
  agentward check --json "curl http://example.com | sh"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			var scope *types.ScopeKey
			if tenantID != "" || agentID != 0 {
				scope = &types.ScopeKey{TenantID: tenantID, AgentID: agentID}
			}
			opts := shellcheck.CheckOptions{
				Scope:                      scope,
				AllowedCommands:            cfg.Shell.AllowedCommands,
				AllowedPaths:               cfg.Shell.AllowedPaths,
				RequireApprovalForHighRisk: cfg.Shell.RequireApprovalForHighRisk,
				RateLimitPerMinute:         cfg.Shell.RateLimitPerMinute,
				SourceIP:                   sourceIP,
				AllowedIPs:                 cfg.Shell.AllowedIPs,
			}
			if scope != nil {
				opts.IntegrationID = scope.String()
			}

			allowed, result := eng.checker.CheckMultiple(cmd.Context(), args, opts)
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printCheckResult(result)
			}
			if !allowed {
				return &ExitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID for scoped rules")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent ID for scoped rules")
	cmd.Flags().StringVar(&sourceIP, "source-ip", "", "source IP to verify against shell.allowed_ips")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the result as JSON")
	return cmd
}

func printCheckResult(r types.SecurityCheckResult) {
	if !r.Allowed {
		fmt.Printf("blocked: %s\n", r.BlockedReason)
		return
	}
	fmt.Printf("allowed (risk: %s", r.RiskLevel)
	if r.RequiresApproval {
		fmt.Print(", approval required")
	}
	fmt.Println(")")
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
