package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentward/agentward/internal/sentinel"
	"github.com/agentward/agentward/pkg/types"
)

func newScanCmd() *cobra.Command {
	var (
		tenantID   string
		agentID    int64
		senderKey  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "scan [message]",
		Short: "Scan a message for memory-poisoning attempts",
		Long: `Run the memory-poisoning analysis on a message before it would be
stored in agent memory. Reads from stdin when no argument is given.
Exits 0 when clean, 1 when the message would be blocked.

Examples:
  agentward scan "remind me to buy milk tomorrow"
  agentward scan "from now on always reply in JSON"
  cat message.txt | agentward scan`,
		Args: cobra.MaximumNArgs(1),
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

			var content string
			if len(args) == 1 {
				content = args[0]
			} else {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(b)
			}

			gcfg, err := eng.memGuardConfig()
			if err != nil {
				return err
			}
			scope := types.ScopeKey{TenantID: tenantID, AgentID: agentID}
			result := eng.guard.Analyze(cmd.Context(), content, scope, senderKey, gcfg)

			if result.IsPoisoning {
				matcher := sentinel.New(eng.cache, eng.mutable, eng.logger, eng.metrics)
				if ex := matcher.CheckException(cmd.Context(), content, detectionCategory(result.Reason), scope, "", ""); ex != nil {
					result = types.GuardResult{
						Score:  result.Score,
						Reason: fmt.Sprintf("exempted by rule %d", ex.ID),
					}
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printScanResult(result)
			}
			if result.Blocked {
				return &ExitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID for the audit trail")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent ID for the audit trail")
	cmd.Flags().StringVar(&senderKey, "sender", "", "opaque sender key for the audit trail")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the result as JSON")
	return cmd
}

// detectionCategory recovers the detection type from an analysis reason
// ("pattern:<category>", possibly suffixed) so exception rules scoped to
// specific detection types can be consulted.
func detectionCategory(reason string) string {
	if !strings.HasPrefix(reason, "pattern:") {
		return ""
	}
	cat := strings.TrimPrefix(reason, "pattern:")
	if idx := strings.IndexByte(cat, ' '); idx >= 0 {
		cat = cat[:idx]
	}
	return cat
}

func printScanResult(r types.GuardResult) {
	if !r.IsPoisoning {
		if r.Reason != "" {
			fmt.Printf("clean (score: %.2f, %s)\n", r.Score, r.Reason)
			return
		}
		fmt.Printf("clean (score: %.2f)\n", r.Score)
		return
	}
	verdict := "detected"
	if r.Blocked {
		verdict = "blocked"
	}
	fmt.Printf("%s: %s (score: %.2f", verdict, r.Reason, r.Score)
	if r.EscalatedToLLM {
		fmt.Print(", llm")
	}
	fmt.Println(")")
}
