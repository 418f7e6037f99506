package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"wxexport/pkg/logger"
	"wxexport/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wxexport",
	Short: "Export WeChat Official Account articles to HTML, PDF and Word",
	Long: `wxexport exports the published articles of a WeChat Official Account
(公众号) through the mp.weixin.qq.com admin console.

Features:
  - Exact account lookup by name and date-window filtering
  - Self-contained HTML with every image inlined
  - PDF through headless Chrome and Word documents with embedded images
  - Concurrent downloads with per-article failure isolation
  - Frequency-control cooldown and resumable article catalog
  - Secure credential storage using the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
		if noColor {
			ui.SetColors(false)
		}
		if quiet && !cmd.Flags().Changed("log-level") {
			logLevel = "error"
		}
		if !quiet && cmd.Name() == exportCmd.Name() && !useTUI {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./wxexport.yaml or ~/.config/wxexport/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per article instead of a progress bar")

	rootCmd.SetVersionTemplate(`wxexport {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags in the form config.Load merges
func globalFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Changed("notifications") {
		flags["enabled"] = notifications
	}
	return flags
}
