package main

import (
	"fmt"
	"os"
	"time"

	"tcl-go/internal/app"
	"tcl-go/internal/config"
	"tcl-go/internal/ledger"
	"tcl-go/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a LedgerApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Record", "Verify").
func newApp(operation string) (*app.LedgerApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewLedgerApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// tenantFrom resolves the tenant: the --tenant flag wins, otherwise the
// configured default.
func tenantFrom(cmd *cobra.Command, a *app.LedgerApp) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = a.TenantID()
	}
	if tenant == "" {
		return "", fmt.Errorf("no tenant: pass --tenant or set tenant_id in config")
	}
	return tenant, nil
}

func actorFrom(cmd *cobra.Command) ledger.Actor {
	name, _ := cmd.Flags().GetString("actor")
	ip, _ := cmd.Flags().GetString("ip")
	return ledger.Actor{Name: name, SourceIP: ip}
}

func printIntegrity(result *model.IntegrityCheckResult) {
	if result.IsValid {
		fmt.Printf("Chain OK: head NSR %d\n", result.LastNSR)
		return
	}
	fmt.Printf("Chain BROKEN: %d finding(s)\n", len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  NSR %-6d %-13s %s\n", e.NSR, e.Kind, e.Detail)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tcl",
	Short: "Timecard integrity and compliance ledger",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init TENANT_ID",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Tenant ID: %s\n", cfg.TenantID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Tenant ID: %s\n", cfg.TenantID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Vault:     %s (%s)\n", cfg.Vault.Type, cfg.Vault.Name)
		return nil
	},
}

// record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a timecard event",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Record")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		employee, _ := cmd.Flags().GetString("employee")
		eventType, _ := cmd.Flags().GetString("type")
		source, _ := cmd.Flags().GetString("source")
		at, _ := cmd.Flags().GetString("at")

		ts := time.Now().UTC()
		if at != "" {
			ts, err = time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("parsing --at: %w", err)
			}
		}

		in := ledger.EventInput{
			TenantID:   tenant,
			EmployeeID: employee,
			EventType:  eventType,
			Timestamp:  ts,
			Source:     source,
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			in.Latitude = &lat
			in.Longitude = &lon
		}

		entry, err := a.Service().RecordEvent(cmd.Context(), in, actorFrom(cmd))
		if err != nil {
			return fmt.Errorf("recording event: %w", err)
		}

		fmt.Printf("Recorded NSR %d (%s %s) hash %s\n", entry.NSR, entry.EventType, entry.EmployeeID, entry.CurrentHash[:12])
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		sign, _ := cmd.Flags().GetBool("sign")

		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		result, err := a.Service().Verify(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("verifying chain: %w", err)
		}
		printIntegrity(result)

		if sign && result.IsValid {
			pass, err := a.ResolvePassphrase()
			if err != nil {
				return err
			}
			cp, err := a.Service().Checkpoint(cmd.Context(), tenant, pass)
			if err != nil {
				return fmt.Errorf("signing checkpoint: %w", err)
			}
			fmt.Printf("Checkpoint: NSR %d hash %s key %s\nSignature: %x\n", cp.NSR, cp.Hash, cp.KeyID, cp.Signature)
		}

		if !result.IsValid {
			return fmt.Errorf("chain integrity check failed")
		}
		return nil
	},
}

// rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Repair a broken chain by recomputing hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp("Rebuild")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		res, err := a.Service().Rebuild(cmd.Context(), tenant, actorFrom(cmd), reason)
		if err != nil {
			return fmt.Errorf("rebuilding chain: %w", err)
		}

		fmt.Printf("Corrected %d record(s)\n", len(res.CorrectedNSRs))
		printIntegrity(res.Result)
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AuditQuery")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		filter := ledger.AuditFilter{TenantID: tenant}
		filter.Action, _ = cmd.Flags().GetString("action")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if cmd.Flags().Changed("nsr") {
			nsr, _ := cmd.Flags().GetInt64("nsr")
			filter.NSR = &nsr
		}

		entries, err := a.Service().QueryAudit(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}

		for _, e := range entries {
			nsr := "-"
			if e.NSR != nil {
				nsr = fmt.Sprintf("%d", *e.NSR)
			}
			fmt.Printf("#%-6d %s  %-16s %-20s nsr:%-6s %s\n",
				e.Seq,
				e.PerformedAt.Format("2006-01-02 15:04:05"),
				e.Action,
				e.PerformedBy,
				nsr,
				e.Reason,
			)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AuditVerify")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		result, err := a.Service().VerifyAuditChain(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("verifying audit chain: %w", err)
		}
		printIntegrity(result)
		if !result.IsValid {
			return fmt.Errorf("audit chain integrity check failed")
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing keys",
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp("KeyIssue")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		pass, err := a.ResolvePassphrase()
		if err != nil {
			return err
		}

		key, err := a.Service().IssueKey(cmd.Context(), tenant, name, pass, actorFrom(cmd))
		if err != nil {
			return fmt.Errorf("issuing key: %w", err)
		}

		fmt.Printf("Issued key %s (%s), expires %s\n", key.ID, key.Algorithm, key.ExpiresAt.Format("2006-01-02"))
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signing keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeyList")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		keys, err := a.Service().ListKeys(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("listing keys: %w", err)
		}

		if len(keys) == 0 {
			fmt.Println("No keys.")
			return nil
		}

		for _, k := range keys {
			revoked := ""
			if k.RevokedAt != nil {
				revoked = fmt.Sprintf("  revoked:%s (%s)", k.RevokedAt.Format("2006-01-02"), k.RevokedReason)
			}
			fmt.Printf("%s  %-8s %-10s created:%s expires:%s%s\n",
				k.ID,
				k.Status,
				k.Name,
				k.CreatedAt.Format("2006-01-02"),
				k.ExpiresAt.Format("2006-01-02"),
				revoked,
			)
		}
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke a signing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp("KeyRevoke")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().RevokeKey(cmd.Context(), args[0], reason, actorFrom(cmd)); err != nil {
			return fmt.Errorf("revoking key: %w", err)
		}

		fmt.Printf("Revoked key %s\n", args[0])
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage ledger snapshots",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture today's ledger snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		rec, err := a.Service().Snapshot(cmd.Context(), tenant, actorFrom(cmd))
		if err != nil {
			return fmt.Errorf("capturing snapshot: %w", err)
		}

		fmt.Printf("Snapshot %s: %d record(s), %d bytes, checksum %s\n",
			rec.BackupDate, rec.RecordCount, rec.SizeBytes, rec.Checksum[:12])
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify DATE",
	Short: "Replay a snapshot and verify its chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupVerify")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		rec, err := a.Service().VerifyBackup(cmd.Context(), tenant, args[0], actorFrom(cmd))
		if err != nil {
			return fmt.Errorf("verifying snapshot: %w", err)
		}

		fmt.Printf("Snapshot %s verified: %d record(s), head NSR %d\n", rec.BackupDate, rec.RecordCount, rec.ChainHeadNSR)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupList")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		backups, err := a.Service().ListBackups(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}

		if len(backups) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}

		for _, b := range backups {
			verified := "unverified"
			if b.IsVerified {
				verified = "verified"
			}
			fmt.Printf("%s  %-10s %6d record(s)  %8d bytes  %s\n",
				b.BackupDate, verified, b.RecordCount, b.SizeBytes, b.Checksum[:12])
		}
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage compliance reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a compliance report",
	RunE: func(cmd *cobra.Command, args []string) error {
		reportType, _ := cmd.Flags().GetString("type")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")

		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return fmt.Errorf("parsing --from: %w", err)
		}
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}

		a, err := newApp("ReportGenerate")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		r, err := a.Service().GenerateReport(cmd.Context(), tenant, reportType, from, to.Add(24*time.Hour), actorFrom(cmd))
		if err != nil {
			return fmt.Errorf("generating report: %w", err)
		}

		fmt.Printf("Report %s (%s v%d): %d record(s), %d employee(s), %.2f hours, %d anomalie(s)\n",
			r.ID, r.ReportType, r.Version, r.TotalRecords, r.TotalEmployees, r.TotalHours, r.Anomalies)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List compliance reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ReportList")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		reports, err := a.Service().ListReports(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("listing reports: %w", err)
		}

		if len(reports) == 0 {
			fmt.Println("No reports.")
			return nil
		}

		for _, r := range reports {
			submitted := ""
			if r.SubmittedToAuthorities {
				submitted = "  [submitted]"
			}
			fmt.Printf("%s  %-8s v%-3d %s..%s  %.2fh%s\n",
				r.ID,
				r.ReportType,
				r.Version,
				r.PeriodStart.Format("2006-01-02"),
				r.PeriodEnd.Format("2006-01-02"),
				r.TotalHours,
				submitted,
			)
		}
		return nil
	},
}

var reportSubmitCmd = &cobra.Command{
	Use:   "submit REPORT_ID",
	Short: "Mark a report as submitted to authorities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ReportSubmit")
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, err := tenantFrom(cmd, a)
		if err != nil {
			return err
		}

		if err := a.Service().SubmitReport(cmd.Context(), tenant, args[0], actorFrom(cmd)); err != nil {
			return fmt.Errorf("submitting report: %w", err)
		}

		fmt.Printf("Report %s submitted\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("tenant", "", "Tenant ID (default from config)")
	rootCmd.PersistentFlags().String("actor", "operator", "Actor name for the audit trail")
	rootCmd.PersistentFlags().String("ip", "", "Source IP for the audit trail")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// record flags
	recordCmd.Flags().String("employee", "", "Employee ID")
	recordCmd.Flags().String("type", "", "Event type: check_in, check_out, break_start, break_end")
	recordCmd.Flags().String("at", "", "Event timestamp (RFC 3339; default now)")
	recordCmd.Flags().Float64("lat", 0, "Latitude")
	recordCmd.Flags().Float64("lon", 0, "Longitude")
	recordCmd.Flags().String("source", "manual", "Source: manual or automatic")

	// verify flags
	verifyCmd.Flags().Bool("sign", false, "Sign a checkpoint of the head after a clean verification")

	// rebuild flags
	rebuildCmd.Flags().String("reason", "", "Reason for the corrective action (required)")

	// audit subcommands and flags
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.Flags().Int64("nsr", 0, "Filter by timecard NSR")
	auditCmd.Flags().String("action", "", "Filter by action")
	auditCmd.Flags().IntP("limit", "n", 100, "Maximum number of entries to show")

	// keys subcommands
	keysCmd.AddCommand(keysIssueCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	keysIssueCmd.Flags().String("name", "signing", "Key name")
	keysRevokeCmd.Flags().String("reason", "", "Reason for revocation (required)")

	// backup subcommands
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupListCmd)

	// report subcommands and flags
	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportSubmitCmd)
	reportGenerateCmd.Flags().String("type", model.ReportMonthly, "Report type: MONTHLY, ANNUAL, AUDIT")
	reportGenerateCmd.Flags().String("from", "", "Period start (YYYY-MM-DD)")
	reportGenerateCmd.Flags().String("to", "", "Period end, inclusive (YYYY-MM-DD)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(reportCmd)
}
