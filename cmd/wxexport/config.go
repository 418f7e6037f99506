package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"wxexport/pkg/auth"
	"wxexport/pkg/config"
	"wxexport/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage wxexport configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (WXEXPORT_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'wxexport.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

The cookie and token are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Output and log path accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# wxexport configuration file
#
# Every option can also be set through environment variables prefixed
# with WXEXPORT_, for example WXEXPORT_COOKIE and WXEXPORT_TOKEN.

# mp.weixin.qq.com session. Prefer 'wxexport auth set' over storing these here.
wechat:
  cookie: ""
  token: ""
  user_agent: ""
  base_url: "https://mp.weixin.qq.com"
  # Timeout for listing and article requests
  timeout: 30s
  # IANA zone used to derive publish dates, empty for local time
  location: "Asia/Shanghai"

# Listing pacing. The console answers ret=200013 when requests come too fast.
rate_limit:
  page_size: 5
  # Wait before the single retry after frequency control
  cooldown: 60s
  # Random pause between listing pages
  min_page_delay: 3s
  max_page_delay: 6s
  # Warn after this many pages
  soft_page_limit: 40
  # Image downloads per minute across all workers, 0 for unlimited
  requests_per_minute: 0

output:
  # Articles go to <base_directory>/<account> when create_account_folders is set.
  # Defaults to ~/Downloads.
  # base_directory: "/path/to/exports"
  create_account_folders: true
  # Any of html, pdf, docx
  formats: ["html"]

download:
  concurrent_downloads: 4
  image_timeout: 10s
  pdf_timeout: 60s
  # Maximum picture width in Word documents, in inches
  docx_image_width: 6

# Headless Chrome used for PDF output
browser:
  exec_path: ""
  headless: true
  no_sandbox: true

notifications:
  enabled: true
  on_complete: true
  on_rate_limit: true

logging:
  # debug, info, warn, error
  level: "info"
  file: ""

storage:
  # Write articles.json or articles.yaml into the output directory
  save_metadata: true
  metadata_format: "json"
  # Catalog checkpoints, empty for the platform data directory
  checkpoint_dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "wxexport.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your session with 'wxexport auth set <profile>'")
	fmt.Println("2. Run 'wxexport config validate' to check the configuration")
	fmt.Println("3. Start exporting with 'wxexport export <account>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	displayCfg := *cfg
	masked := auth.SanitizeAccount(&auth.Account{Cookie: cfg.WeChat.Cookie, Token: cfg.WeChat.Token})
	displayCfg.WeChat.Cookie = masked.Cookie
	displayCfg.WeChat.Token = masked.Token

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (WXEXPORT_*)")
	fmt.Println("3. .env files")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in standard locations)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	var warnings, problems []string

	if cfg.WeChat.Cookie == "" || cfg.WeChat.Token == "" {
		warnings = append(warnings, "no cookie/token configured; a stored profile will be used")
	}
	if cfg.Output.BaseDirectory != "" {
		if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	if cfg.RateLimit.MinPageDelay < 3*time.Second {
		warnings = append(warnings, "min_page_delay below 3s makes frequency control more likely")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration is invalid")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Formats: %v\n", cfg.Output.Formats)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Page delay: %s-%s, cooldown %s\n", cfg.RateLimit.MinPageDelay, cfg.RateLimit.MaxPageDelay, cfg.RateLimit.Cooldown)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
