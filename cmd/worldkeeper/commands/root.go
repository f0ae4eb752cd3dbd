// Package commands provides the CLI commands for worldkeeper.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/worldkeeper/worldkeeper/internal/config"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	prettyLog bool
	logFile   string
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "worldkeeper",
	Short: "worldkeeper - world lifecycle and backup manager",
	Long: `worldkeeper keeps a set of worlds on disk, loads them when players
enter, unloads them once they have been idle, and takes rotating backups.

Run 'worldkeeper serve' to start the runtime with its HTTP admin API, or
'worldkeeper backup' to inspect the local backup store.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", false, "Human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Directory holding config.yml, worldkeeper.jsonc and .env")

	rootCmd.SetVersionTemplate(fmt.Sprintf("worldkeeper %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// loadConfig reads the configuration for the working directory and
// initializes logging from it. Flags win over the file.
func loadConfig() (*types.Config, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if prettyLog {
		cfg.Log.Pretty = true
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.File = cfg.Log.File
	if err := logging.Init(logCfg); err != nil {
		logging.Warn().Err(err).Str("file", cfg.Log.File).Msg("logging to console only")
	}

	return cfg, nil
}
