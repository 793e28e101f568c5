package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"qnote/internal/app"
	"qnote/internal/asset"
	"qnote/internal/config"
	"qnote/internal/logicalday"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a QNApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AttachAssets", "PurgeExpired").
func newApp(operation string) (*app.QNApp, error) {
	return openApp(operation, app.Options{})
}

func openApp(operation string, opts app.Options) (*app.QNApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewQNApp(cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func formatDay(d logicalday.Day) string {
	y, m, day := d.Date()
	return fmt.Sprintf("%s (%04d-%02d-%02d)", d, y, int(m), day)
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func parseQuestionID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid question id %q", s)
	}
	return id, nil
}

var rootCmd = &cobra.Command{
	Use:          "qnote",
	Short:        "Question notebook asset storage",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Data Root: %s\n", cfg.DataRoot)
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
		fmt.Printf("Data Root:   %s\n", cfg.DataRoot)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Calendar:    UTC%+.1f, day starts at %02d:00\n", float64(cfg.Calendar.UTCOffsetMinutes)/60, cfg.Calendar.CutoffHour)
		fmt.Printf("Keep Days:   %d\n", cfg.Recycle.KeepDays)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Encryption:  %s (%s)\n", cfg.Encryption.Type, cfg.Encryption.PublicKeyPath)
		if cfg.Metrics.TextfilePath != "" {
			fmt.Printf("Metrics:     %s\n", cfg.Metrics.TextfilePath)
		}
		return nil
	},
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data root and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp("Init", app.Options{Init: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Initialize(); err != nil {
			return err
		}

		root := a.DataRoot()
		fmt.Printf("Data root ready at %s\n", root.Root)
		fmt.Printf("Schema version: %d\n", root.Instance.SchemaVersion)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage backup encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the backup key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg.Encryption, passphrase); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage question assets",
}

var assetAddCmd = &cobra.Command{
	Use:   "add QUESTION_ID FILE...",
	Short: "Attach files to a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")

		questionID, err := parseQuestionID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("AttachAssets")
		if err != nil {
			return err
		}
		defer a.Close()

		assets, err := a.AttachAssets(questionID, typ, args[1:])
		if err != nil {
			return fmt.Errorf("attaching assets: %w", err)
		}

		for _, as := range assets {
			fmt.Printf("%s  %s\n", as.ID, as.Path)
		}
		fmt.Printf("Attached %d asset(s) to question %d\n", len(assets), questionID)
		return nil
	},
}

var assetLsCmd = &cobra.Command{
	Use:   "ls QUESTION_ID",
	Short: "List the live assets of a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionID, err := parseQuestionID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("ListAssets")
		if err != nil {
			return err
		}
		defer a.Close()

		assets, err := a.ListAssets(questionID)
		if err != nil {
			return err
		}

		if len(assets) == 0 {
			fmt.Println("No assets.")
			return nil
		}
		for _, as := range assets {
			fmt.Printf("%s  %-8s  %s  %s\n",
				as.ID,
				as.Type,
				as.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				as.Path,
			)
		}
		return nil
	},
}

var assetCatCmd = &cobra.Command{
	Use:   "cat ASSET_ID",
	Short: "Write an asset to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ReadAsset")
		if err != nil {
			return err
		}
		defer a.Close()

		rc, err := a.OpenAsset(args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		if _, err := io.Copy(os.Stdout, rc); err != nil {
			return fmt.Errorf("writing asset: %w", err)
		}
		return nil
	},
}

var assetRmCmd = &cobra.Command{
	Use:   "rm [ASSET_ID...]",
	Short: "Move assets to the recycle bin",
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		if question == "" && len(args) == 0 {
			return fmt.Errorf("give asset ids or --question")
		}
		if question != "" && len(args) > 0 {
			return fmt.Errorf("asset ids and --question are mutually exclusive")
		}

		if question != "" {
			questionID, err := parseQuestionID(question)
			if err != nil {
				return err
			}
			a, err := newApp("RecycleQuestionAssets")
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.RecycleQuestionAssets(questionID)
			if err != nil {
				return err
			}
			for _, f := range result.Failed {
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.ID, f.Err)
			}
			fmt.Printf("Recycled %d asset(s), %d failed\n", len(result.Recycled), len(result.Failed))
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d asset(s) could not be recycled", len(result.Failed))
			}
			return nil
		}

		a, err := newApp("RecycleAsset")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			recycled, err := a.RecycleAsset(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  -> %s\n", recycled.ID, recycled.Path)
		}
		return nil
	},
}

// bin command
var binCmd = &cobra.Command{
	Use:   "bin",
	Short: "Inspect and purge the recycle bin",
}

var binStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recycle bin usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GarbageStats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.GarbageStats()
		if err != nil {
			return err
		}

		fmt.Printf("Today:  %s\n", formatDay(a.Today()))
		fmt.Printf("Files:  %s\n", humanize.Comma(int64(stats.FileCount)))
		fmt.Printf("Size:   %s\n", formatSize(stats.TotalSize))
		for _, dc := range stats.CountByDay {
			fmt.Printf("  %s  %d file(s)\n", formatDay(dc.Day), dc.Count)
		}
		return nil
	},
}

// keepDaysFlag returns --keep-days, or the configured retention when the
// flag was not given.
func keepDaysFlag(cmd *cobra.Command, a *app.QNApp) int {
	if cmd.Flags().Changed("keep-days") {
		n, _ := cmd.Flags().GetInt("keep-days")
		return n
	}
	return a.KeepDays()
}

func printEntries(entries []asset.GarbageEntry) {
	for _, e := range entries {
		fmt.Printf("  %s  %8s  %s\n", e.Day, formatSize(e.Size), e.Path)
	}
}

var binCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "List recycled files that a purge would delete",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("PreviewExpired")
		if err != nil {
			return err
		}
		defer a.Close()

		preview, err := a.PreviewExpired(keepDaysFlag(cmd, a))
		if err != nil {
			return err
		}

		fmt.Printf("Files recycled before %s: %d (%s)\n",
			formatDay(preview.Threshold), len(preview.Entries), formatSize(preview.TotalSize))
		printEntries(preview.Entries)
		return nil
	},
}

var binPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently delete expired recycled files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("PurgeExpired")
		if err != nil {
			return err
		}
		defer a.Close()

		keepDays := keepDaysFlag(cmd, a)
		preview, err := a.PreviewExpired(keepDays)
		if err != nil {
			return err
		}
		if len(preview.Entries) == 0 {
			fmt.Println("Nothing to purge.")
			return nil
		}

		printEntries(preview.Entries)
		ok, err := confirm(cmd, fmt.Sprintf("Permanently delete %d file(s), %s, recycled before %s?",
			len(preview.Entries), formatSize(preview.TotalSize), formatDay(preview.Threshold)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}

		deleted, err := a.PurgeBefore(preview.Threshold)
		fmt.Printf("Deleted %d file(s)\n", len(deleted))
		return err
	},
}

var binPurgeDayCmd = &cobra.Command{
	Use:   "purge-day DAY",
	Short: "Permanently delete everything recycled on one logical day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("PurgeDay")
		if err != nil {
			return err
		}
		defer a.Close()

		day, entries, err := a.PreviewDay(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("Nothing recycled on %s.\n", formatDay(day))
			return nil
		}

		var size int64
		for _, e := range entries {
			size += e.Size
		}
		printEntries(entries)
		ok, err := confirm(cmd, fmt.Sprintf("Permanently delete %d file(s), %s, recycled on %s?",
			len(entries), formatSize(size), formatDay(day)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}

		deleted, err := a.PurgeDay(day)
		fmt.Printf("Deleted %d file(s)\n", len(deleted))
		return err
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Back up and restore the record database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write an encrypted database backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupDatabase")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.BackupDatabase()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		fmt.Printf("Backup written to %s (%s)\n", path, formatSize(info.Size()))
		return nil
	},
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List database backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		backups, err := a.Backups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, b := range backups {
			info, err := os.Stat(b)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %8s  %s\n", humanize.Time(info.ModTime()), formatSize(info.Size()), b)
		}
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP",
	Short: "Restore a database backup into a new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("RestoreDatabase")
		if err != nil {
			return err
		}
		defer a.Close()

		if output == "" {
			output = a.DataRoot().DBPath + ".restored"
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if err := a.RestoreDatabase(passphrase, args[0], output); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Database restored to %s\n", output)
		fmt.Printf("Replace %s with it while qnote is not running.\n", a.DataRoot().DBPath)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-22s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	// asset subcommands
	assetCmd.AddCommand(assetAddCmd)
	assetAddCmd.Flags().StringP("type", "t", "other", "Asset type: question, answer, explain or other")
	assetCmd.AddCommand(assetLsCmd)
	assetCmd.AddCommand(assetCatCmd)
	assetCmd.AddCommand(assetRmCmd)
	assetRmCmd.Flags().StringP("question", "q", "", "Recycle every asset of this question")

	// bin subcommands
	binCmd.AddCommand(binStatsCmd)
	binCmd.AddCommand(binCheckCmd)
	binCheckCmd.Flags().IntP("keep-days", "k", config.DefaultKeepDays, "Retention in days (default from config)")
	binCmd.AddCommand(binPurgeCmd)
	binPurgeCmd.Flags().IntP("keep-days", "k", config.DefaultKeepDays, "Retention in days (default from config)")
	binPurgeCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	binCmd.AddCommand(binPurgeDayCmd)
	binPurgeDayCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbRestoreCmd)
	dbRestoreCmd.Flags().StringP("output", "o", "", "Restore target (default: <data root>/qnote.db.restored)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(binCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
