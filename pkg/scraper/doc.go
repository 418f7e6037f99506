// Package scraper runs a complete export for one official account.
//
// The Scraper wires the pipeline together:
//   - resolves the account name to its fakeid through the console API
//   - pages through the article listing inside the date window, resuming
//     from the catalog checkpoint when asked to
//   - downloads every article on a bounded worker pool and writes the
//     requested formats under the output root
//   - writes the articles index and sends the completion notification
//
// Usage:
//
//	cfg, _ := config.Load("", nil)
//	s, err := scraper.New(cfg, creds, scraper.WithSink(ui.NewConsoleSink(os.Stdout, false)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	window, _ := models.ParseDateWindow("2024-01-01", "2024-06-30")
//	summary, err := s.Export(ctx, "薪火传", scraper.Options{Window: window})
//
// Rate limiting:
//
// Listing calls are paced 3-6 seconds apart. A frequency-control response
// is retried once after the cooldown; if it persists, pagination ends and
// the articles gathered so far are still exported. The catalog checkpoint
// keeps the resume offset so a later run with Resume set continues where
// listing stopped.
package scraper
