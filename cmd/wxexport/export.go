package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"wxexport/pkg/auth"
	"wxexport/pkg/config"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
	"wxexport/pkg/scraper"
	"wxexport/pkg/ui"
	"wxexport/pkg/ui/tui"
	"wxexport/pkg/wechat"
)

var (
	// Export command flags
	startDate    string
	endDate      string
	formatList   []string
	outputDir    string
	concurrent   int
	profileName  string
	resumeExport bool
	forceRestart bool
	useTUI       bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <account>",
	Short: "Export the articles of an official account",
	Long: `Export the published articles of an official account.

The account name must match the nickname exactly. Articles are written to
<output>/HTML, <output>/PDF and <output>/Word as
{publish date}_{title}.{ext}. Files that already exist are kept, so an
interrupted export can simply be run again.

Credentials are taken from, in order:
  - the profile named with --profile
  - WXEXPORT_COOKIE and WXEXPORT_TOKEN or the config file
  - the most recently stored profile (see 'wxexport auth set')`,
	Example: `  # Everything the account has published, as HTML
  wxexport export 薪火传

  # First half of 2024 as PDF and Word
  wxexport export 薪火传 --start 2024-01-01 --end 2024-06-30 --format pdf,docx

  # Continue after frequency control cut the listing short
  wxexport export 薪火传 --resume

  # Live dashboard
  wxexport export 薪火传 --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&startDate, "start", "", "earliest publish date to export (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&endDate, "end", "", "latest publish date to export (YYYY-MM-DD)")
	exportCmd.Flags().StringSliceVarP(&formatList, "format", "f", nil, "output formats: html, pdf, docx (default from config: html)")
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: ~/Downloads/<account>)")
	exportCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent article downloads (default 4)")
	exportCmd.Flags().StringVarP(&profileName, "profile", "p", "", "use a specific stored credential profile")
	exportCmd.Flags().BoolVar(&resumeExport, "resume", false, "resume the article catalog from the last checkpoint")
	exportCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard any checkpoint and list from the newest article")
	exportCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
}

func runExport(cmd *cobra.Command, args []string) error {
	account := strings.TrimSpace(args[0])
	if account == "" {
		return fmt.Errorf("account name is required")
	}

	window, err := models.ParseDateWindow(startDate, endDate)
	if err != nil {
		return err
	}

	flags := globalFlags(cmd)
	if len(formatList) > 0 {
		flags["formats"] = formatList
	}
	if concurrent > 0 {
		flags["concurrent-downloads"] = concurrent
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	formats, err := models.ParseFormats(cfg.Output.Formats)
	if err != nil {
		return err
	}

	if useTUI && cfg.Logging.File == "" {
		logger.SetLogger(logger.NewNopLogger())
	} else if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("wxexport starting")

	creds, source, err := resolveCredentials(cfg)
	if err != nil {
		return err
	}
	log.WithField("source", source).Info("Using credentials")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sink     events.Sink
		terminal *tui.TUI
		notifier *ui.Notifier
	)
	switch {
	case useTUI:
		terminal = tui.NewTUI(account, cfg.RateLimit.Cooldown)
		terminal.Start()
		sink = terminal
	case quiet:
		sink = events.LogSink(log)
	default:
		ui.PrintInfo("公众号", account)
		ui.PrintInfo("凭据", source)
		ui.PrintInfo("时间范围", window.String())
		ui.PrintInfo("格式", formats.String())
		sink = ui.NewConsoleSink(os.Stdout, verbose)
		notifier = ui.NewNotifier(cfg.Notifications.Enabled)
	}

	s, err := scraper.New(cfg, creds,
		scraper.WithSink(sink),
		scraper.WithLogger(log),
		scraper.WithNotifier(notifier),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.Export(ctx, account, scraper.Options{
		Window:       window,
		Formats:      formats,
		OutputRoot:   outputDir,
		Resume:       resumeExport,
		ForceRestart: forceRestart,
	})

	if terminal != nil {
		if stopErr := terminal.Stop(); stopErr != nil {
			log.WithError(stopErr).Warn("Terminal UI exited with error")
		}
	}

	if err != nil {
		log.WithError(err).WithField("account", account).Error("Export failed")
		if errs.IsNotFound(err) {
			return fmt.Errorf("no official account named %q was found; the name must match exactly", account)
		}
		if errs.IsType(err, errs.ErrorTypeAuth) {
			return fmt.Errorf("%w\nthe session may have expired, run 'wxexport auth guide'", err)
		}
		return err
	}

	if !quiet {
		fmt.Println()
		ui.PrintSuccess(fmt.Sprintf("下载: %d, 跳过: %d", summary.Downloaded, summary.Skipped))
		ui.PrintInfo("输出目录", summary.OutputRoot)
		if summary.IndexPath != "" {
			ui.PrintInfo("文章索引", summary.IndexPath)
		}
		if summary.RateLimited {
			ui.PrintWarning("列表因频率限制提前结束，稍后使用 --resume 继续")
		}
	}
	return nil
}

// resolveCredentials picks the session to use and describes where it came from
func resolveCredentials(cfg *config.Config) (wechat.Credentials, string, error) {
	manager, err := auth.NewManager()
	if err != nil {
		return wechat.Credentials{}, "", fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if profileName != "" {
		account, err := manager.Retrieve(profileName)
		if err != nil {
			return wechat.Credentials{}, "", fmt.Errorf("profile %q: %w (see 'wxexport auth list')", profileName, err)
		}
		return withUserAgent(account.Credentials(), cfg), "profile " + account.Name, nil
	}

	if cfg.WeChat.Cookie != "" && cfg.WeChat.Token != "" {
		return withUserAgent(wechat.Credentials{Cookie: cfg.WeChat.Cookie, Token: cfg.WeChat.Token}, cfg), "configuration", nil
	}

	account, err := manager.RetrieveDefault()
	if err != nil {
		ui.PrintError("No mp.weixin.qq.com credentials found")
		auth.WriteCredentialGuide(os.Stderr)
		return wechat.Credentials{}, "", err
	}
	return withUserAgent(account.Credentials(), cfg), "profile " + account.Name, nil
}

func withUserAgent(c wechat.Credentials, cfg *config.Config) wechat.Credentials {
	if c.UserAgent == "" {
		c.UserAgent = cfg.WeChat.UserAgent
	}
	return c
}
