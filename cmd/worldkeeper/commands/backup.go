package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/worldkeeper/worldkeeper/internal/archive"
	"github.com/worldkeeper/worldkeeper/internal/backup"
	"github.com/worldkeeper/worldkeeper/internal/config"
	"github.com/worldkeeper/worldkeeper/internal/storage"
	"github.com/worldkeeper/worldkeeper/internal/world"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var (
	backupJSON    bool
	backupNoColor bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect the local backup store",
}

var backupListCmd = &cobra.Command{
	Use:   "list <world>",
	Short: "List the backups of a world, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupList,
}

var backupInspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "List the files stored in a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupInspect,
}

func init() {
	backupCmd.PersistentFlags().BoolVar(&backupJSON, "json", false, "Print JSON instead of a table")
	backupCmd.PersistentFlags().BoolVar(&backupNoColor, "no-color", false, "Disable colored output")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupInspectCmd)
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := config.GetPaths()
	worldsDir, backupsDir := paths.Resolve(cfg)

	ctx := context.Background()
	fs := afero.NewOsFs()
	registry := world.NewRegistry(storage.New(paths.StoragePath()), fs, worldsDir)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("load world registry: %w", err)
	}
	w, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	backups, err := backup.NewLocalStorage(fs, backupsDir).List(ctx, w.ID)
	if err != nil {
		return err
	}
	if backupJSON {
		return writeJSONOut(cmd.OutOrStdout(), backups)
	}
	color.NoColor = color.NoColor || backupNoColor
	renderBackups(cmd.OutOrStdout(), w.Name(), backups)
	return nil
}

func runBackupInspect(cmd *cobra.Command, args []string) error {
	entries, err := archive.Entries(afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}
	if backupJSON {
		return writeJSONOut(cmd.OutOrStdout(), entries)
	}
	color.NoColor = color.NoColor || backupNoColor
	renderEntries(cmd.OutOrStdout(), entries)
	return nil
}

func writeJSONOut(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderBackups prints one row per backup. The newest is highlighted.
func renderBackups(out io.Writer, name string, backups []types.Backup) {
	if len(backups) == 0 {
		fmt.Fprintln(out, color.New(color.FgHiBlack).Sprintf("No backups of %s.", name))
		return
	}

	fmt.Fprintln(out, color.New(color.Bold).Sprintf("Backups of %s (%d)", name, len(backups)))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	idColor := color.New(color.FgCyan)
	for i, b := range backups {
		when := b.CreatedAt.Local().Format(backup.TimeFormat)
		if i == len(backups)-1 {
			when = color.New(color.FgGreen).Sprint(when + " (latest)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", idColor.Sprint(b.ID), when, formatSize(b.Size))
	}
	tw.Flush()
}

func renderEntries(out io.Writer, entries []archive.Entry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	dirColor := color.New(color.FgBlue, color.Bold)
	var total uint64
	for _, e := range entries {
		if e.Dir {
			fmt.Fprintf(tw, "%s\t\t\n", dirColor.Sprint(e.Name+"/"))
			continue
		}
		total += e.Size
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, formatSize(int64(e.Size)), e.Modified.Local().Format(backup.TimeFormat))
	}
	tw.Flush()
	fmt.Fprintln(out, color.New(color.FgHiBlack).Sprintf("%d entries, %s uncompressed", len(entries), formatSize(int64(total))))
}

// formatSize renders n bytes with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
