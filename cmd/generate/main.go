package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/i18n"
	"studio/internal/infra"
	"studio/internal/poller"
	"studio/internal/providers/conceptart"
	"studio/internal/session"
	"studio/internal/storage"
)

func main() {
	var (
		themeFlag     string
		keywordsFlag  string
		colorsFlag    string
		moodFlag      string
		promptFlag    string
		negativeFlag  string
		countFlag     int
		ratioFlag     string
		seedFlag      int64
		downloadFlag  bool
		outFlag       string
		localeFlag    string
		jsonFlag      bool
		intervalFlag  time.Duration
		attemptsFlag  int
		variationFlag string
		zipFlag       string
	)

	flag.StringVar(&themeFlag, "theme", "", "brief theme (selects the brief flow)")
	flag.StringVar(&keywordsFlag, "keywords", "", "comma separated style keywords for the brief")
	flag.StringVar(&colorsFlag, "colors", "", "comma separated primary hex colors for the brief")
	flag.StringVar(&moodFlag, "mood", "", "color mood for the brief")
	flag.StringVar(&variationFlag, "variations", "", "comma separated variation hints for the brief flow")
	flag.StringVar(&promptFlag, "prompt", "", "raw prompt (selects the prompt flow)")
	flag.StringVar(&negativeFlag, "negative", "", "negative prompt for the prompt flow")
	flag.IntVar(&countFlag, "count", jsoncfg.DefaultCount, "number of images (1-10)")
	flag.StringVar(&ratioFlag, "ratio", jsoncfg.DefaultAspectRatio, "aspect ratio (16:9, 4:5, 1:1, 21:9)")
	flag.Int64Var(&seedFlag, "seed", -1, "fixed seed for the brief flow (-1 for random)")
	flag.BoolVar(&downloadFlag, "download", false, "save the resulting images under the storage path")
	flag.StringVar(&zipFlag, "zip", "", "write the resulting images into this zip file")
	flag.StringVar(&outFlag, "out", "", "storage path override (defaults to STORAGE_PATH)")
	flag.StringVar(&localeFlag, "locale", "", "locale for status messages (en, zh-Hant)")
	flag.BoolVar(&jsonFlag, "json", false, "print results as JSON")
	flag.DurationVar(&intervalFlag, "interval", 0, "poll interval override")
	flag.IntVar(&attemptsFlag, "max-attempts", 0, "poll attempt budget override")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	logger := infra.NewLogger(infra.LoggerOptions{Env: cfg.AppEnv, Level: level, Out: os.Stderr, Component: "generate"})
	locale := localeFlag
	if locale == "" {
		locale = cfg.DefaultLocale
	}

	theme := strings.TrimSpace(themeFlag)
	prompt := strings.TrimSpace(promptFlag)
	if (theme == "") == (prompt == "") {
		exitWithError(errors.New("exactly one of -theme or -prompt must be provided"))
	}
	if err := jsoncfg.ValidateAspectRatio(ratioFlag); err != nil {
		exitWithError(err)
	}

	client, err := conceptart.NewClient(conceptart.Options{
		BaseURL:        cfg.ConceptAPIBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.HTTPClientTimeout,
	})
	if err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jobID string
	if theme != "" {
		brief := jsoncfg.BriefJSON{
			Theme:         theme,
			StyleKeywords: splitCSV(keywordsFlag),
			ColorPreferences: jsoncfg.ColorPreferences{
				Primary: jsoncfg.ParseColors(colorsFlag),
			},
			TargetCount: countFlag,
			TargetRatio: ratioFlag,
		}
		if mood := strings.TrimSpace(moodFlag); mood != "" {
			brief.ColorPreferences.Mood = &mood
		}
		summary, err := client.CreateBrief(ctx, brief)
		if err != nil {
			exitWithError(fmt.Errorf("create brief: %w", err))
		}
		fmt.Fprintf(os.Stderr, "%s %s (theme %q, ~%ds)\n", i18n.Text(locale, i18n.KeyBriefCreated), summary.BriefID, summary.Theme, summary.EstimatedTime)

		req := jsoncfg.GenerateJSON{BriefID: summary.BriefID, Count: countFlag, Ratio: ratioFlag, Variations: splitCSV(variationFlag)}
		if seedFlag >= 0 {
			seed := seedFlag
			req.Seed = &seed
		}
		jobID, err = client.Generate(ctx, req)
		if err != nil {
			exitWithError(fmt.Errorf("generate: %w", err))
		}
	} else {
		jobID, err = client.GenerateFromPrompt(ctx, jsoncfg.PromptGenerateJSON{
			Prompt:         prompt,
			NegativePrompt: negativeFlag,
			NumImages:      countFlag,
			AspectRatio:    ratioFlag,
		})
		if err != nil {
			exitWithError(fmt.Errorf("generate: %w", err))
		}
	}
	fmt.Fprintf(os.Stderr, "%s job %s\n", i18n.Text(locale, i18n.KeyPreparing), jobID)

	interval := cfg.PollInterval
	if intervalFlag > 0 {
		interval = intervalFlag
	}
	maxAttempts := cfg.PollMaxAttempts
	if attemptsFlag > 0 {
		maxAttempts = attemptsFlag
	}

	results, err := poller.Await(ctx, jobID, client.GenerationStatus, func(p poller.Progress) {
		fmt.Fprintf(os.Stderr, "\r%s", progressLine(locale, p))
	}, poller.Options{Interval: interval, MaxAttempts: maxAttempts, Logger: &logger})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		var failure *domain.BackendFailure
		switch {
		case errors.As(err, &failure):
			exitWithError(errors.New(i18n.Text(locale, i18n.KeyFailed, failure.Message)))
		case errors.Is(err, domain.ErrTimeout):
			exitWithError(fmt.Errorf("%s (%v)", i18n.Text(locale, i18n.KeyTimedOut), err))
		case errors.Is(err, domain.ErrCancelled):
			exitWithError(errors.New(i18n.Text(locale, i18n.KeyCancelled)))
		default:
			exitWithError(err)
		}
	}
	fmt.Fprintln(os.Stderr, i18n.Text(locale, i18n.KeyCompleted))

	var saved []session.DownloadedFile
	if downloadFlag {
		base := cfg.StoragePath
		if outFlag != "" {
			base = outFlag
		}
		store, err := storage.NewFileStore(base)
		if err != nil {
			exitWithError(err)
		}
		saved, err = session.SaveResults(ctx, client, store, jobID, results)
		if err != nil {
			exitWithError(err)
		}
	}

	if zipFlag != "" {
		data, err := session.ArchiveResults(ctx, client, jobID, results)
		if err != nil {
			exitWithError(err)
		}
		if err := os.WriteFile(zipFlag, data, 0o644); err != nil {
			exitWithError(err)
		}
		fmt.Fprintf(os.Stderr, "archive written to %s\n", zipFlag)
	}

	if jsonFlag {
		out := map[string]any{"job_id": jobID, "results": results}
		if downloadFlag {
			out["files"] = saved
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			exitWithError(err)
		}
		return
	}
	for i, r := range results {
		line := fmt.Sprintf("%d. %s %s", i+1, r.ID, r.URL)
		if r.Width > 0 && r.Height > 0 {
			line += fmt.Sprintf(" (%dx%d)", r.Width, r.Height)
		}
		if r.Seed != nil {
			line += fmt.Sprintf(" seed=%d", *r.Seed)
		}
		fmt.Println(line)
	}
	for _, f := range saved {
		fmt.Printf("saved %s (%d bytes)\n", f.Path, f.Bytes)
	}
}

func progressLine(locale string, p poller.Progress) string {
	msg := p.Message
	if msg == "" {
		msg = i18n.Text(locale, i18n.KeyGenerating)
	}
	if p.Percent != nil {
		return fmt.Sprintf("[%d/%d] %3d%% %s", p.Attempt, p.MaxAttempts, *p.Percent, msg)
	}
	return fmt.Sprintf("[%d/%d] %s", p.Attempt, p.MaxAttempts, msg)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
