package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentward/agentward/internal/auditlog"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log commands",
	}
	cmd.AddCommand(newAuditTailCmd())
	return cmd
}

func newAuditTailCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Audit.Sink != "sqlite" {
				return fmt.Errorf("audit tail requires audit.sink sqlite (have %q)", cfg.Audit.Sink)
			}
			rec, err := auditlog.OpenSQLite(cfg.Audit.SQLitePath)
			if err != nil {
				return fmt.Errorf("open audit db: %w", err)
			}
			defer rec.Close()

			records, err := rec.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Println("no audit records")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s %-16s %-8s score=%.2f %s\n",
					r.Timestamp.Format("2006-01-02T15:04:05Z"),
					r.AnalysisType, r.Action, r.Score, r.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit records as JSON")
	return cmd
}
