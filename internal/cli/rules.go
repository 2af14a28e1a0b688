package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentward/agentward/internal/sentinel"
	"github.com/agentward/agentward/pkg/types"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage pattern rules",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesRemoveCmd())
	cmd.AddCommand(newRulesToggleCmd())
	return cmd
}

func ruleKindFlag(cmd *cobra.Command, kind *string) {
	cmd.Flags().StringVar(kind, "kind", "exception", "rule kind: blocked, high_risk, exception")
}

func parseRuleKind(s string) (types.RuleKind, error) {
	switch types.RuleKind(s) {
	case types.KindBlocked, types.KindHighRisk, types.KindException:
		return types.RuleKind(s), nil
	}
	return "", fmt.Errorf("unknown rule kind %q", s)
}

func newRulesListCmd() *cobra.Command {
	var (
		kindName string
		tenantID string
		agentID  int64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseRuleKind(kindName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			scope := types.ScopeKey{TenantID: tenantID, AgentID: agentID}
			rules, err := eng.store.FetchRules(cmd.Context(), scope, kind)
			if err != nil {
				return fmt.Errorf("fetch rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Println("no rules")
				return nil
			}
			for _, r := range rules {
				state := "active"
				if !r.IsActive {
					state = "inactive"
				}
				fmt.Printf("%-6d %-8s %-8s %-10s %s\n", r.ID, state, r.MatchMode, r.RiskLevel, r.Pattern)
			}
			return nil
		},
	}
	ruleKindFlag(cmd, &kindName)
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant scope (empty for system)")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent scope (0 for tenant-wide)")
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		tenantID       string
		agentID        int64
		matchMode      string
		riskLevel      string
		exceptionKind  string
		detectionTypes string
		category       string
		description    string
		priority       int
	)
	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add an exception rule",
		Args:  cobra.ExactArgs(1),
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
			if eng.mutable == nil {
				return fmt.Errorf("rules source %q does not support writes", cfg.Rules.Source)
			}

			matcher := sentinel.New(eng.cache, eng.mutable, eng.logger, eng.metrics)
			created := matcher.CreateRule(cmd.Context(), tenantID, types.PatternRule{
				Pattern:        args[0],
				MatchMode:      types.MatchMode(matchMode),
				RiskLevel:      types.RiskLevel(riskLevel),
				Category:       category,
				Description:    description,
				DetectionTypes: detectionTypes,
				ExceptionKind:  types.ExceptionKind(exceptionKind),
				TenantID:       tenantID,
				AgentID:        agentID,
				Priority:       priority,
				IsActive:       true,
			})
			if created == nil {
				return &ExitError{code: 1, message: "rule not created"}
			}
			fmt.Printf("created rule %d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent scope (0 for tenant-wide)")
	cmd.Flags().StringVar(&matchMode, "mode", "exact", "match mode: exact, glob, regex")
	cmd.Flags().StringVar(&riskLevel, "risk", "low", "risk level: low, medium, high, critical")
	cmd.Flags().StringVar(&exceptionKind, "exception-kind", "pattern", "exception kind: pattern, domain, tool, network_target")
	cmd.Flags().StringVar(&detectionTypes, "detection-types", "*", "comma list of detection types the rule covers, or *")
	cmd.Flags().StringVar(&category, "category", "", "rule category")
	cmd.Flags().StringVar(&description, "description", "", "rule description")
	cmd.Flags().IntVar(&priority, "priority", 0, "evaluation priority within a tier")
	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an exception rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer eng.Close()
			if eng.mutable == nil {
				return fmt.Errorf("rules source %q does not support writes", cfg.Rules.Source)
			}

			matcher := sentinel.New(eng.cache, eng.mutable, eng.logger, eng.metrics)
			if !matcher.DeleteRule(cmd.Context(), tenantID, id) {
				return &ExitError{code: 1, message: fmt.Sprintf("rule %d not removed", id)}
			}
			fmt.Printf("removed rule %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant")
	return cmd
}

func newRulesToggleCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle an exception rule active or inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer eng.Close()
			if eng.mutable == nil {
				return fmt.Errorf("rules source %q does not support writes", cfg.Rules.Source)
			}

			matcher := sentinel.New(eng.cache, eng.mutable, eng.logger, eng.metrics)
			rule := matcher.ToggleRule(cmd.Context(), tenantID, id)
			if rule == nil {
				return &ExitError{code: 1, message: fmt.Sprintf("rule %d not toggled", id)}
			}
			state := "inactive"
			if rule.IsActive {
				state = "active"
			}
			fmt.Printf("rule %d is now %s\n", id, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant")
	return cmd
}
