package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/api/handlers"
	"smarttest/internal/api/routes"
	"smarttest/internal/browser"
	"smarttest/internal/config"
	"smarttest/internal/executor"
	"smarttest/internal/generator"
	"smarttest/internal/history"
	"smarttest/internal/recorder"
	"smarttest/internal/reports"
	"smarttest/internal/services"
	"smarttest/pkg/auth"
	"smarttest/pkg/chrome"
	"smarttest/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "smarttest",
		Usage: "analyze live web pages, generate test suites and execute them against real browsers",
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newBrowser(cfg *config.Config, log *zap.Logger) (browser.Browser, error) {
	execPath := cfg.Browser.ExecPath
	if execPath == "" {
		found, err := chrome.FindChrome()
		if err != nil {
			return nil, err
		}
		execPath = found
	}
	return browser.NewChromeBrowser(browser.Options{
		ExecPath:  execPath,
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
		Width:     cfg.Browser.Width,
		Height:    cfg.Browser.Height,
		DataDir:   cfg.Browser.DataDir,
	}, log)
}

func executorConfig(cfg *config.Config) executor.Config {
	return executor.Config{
		Workers:         cfg.Executor.Workers,
		Timeout:         time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.Executor.MaxRetries,
		RetryBase:       time.Duration(cfg.Executor.RetryBaseMs) * time.Millisecond,
		RetryMultiplier: cfg.Executor.RetryMultiplier,
		RetryMaxDelay:   time.Duration(cfg.Executor.RetryMaxDelayMs) * time.Millisecond,
		LoadTimeBudget:  time.Duration(cfg.Executor.LoadBudgetMs) * time.Millisecond,
		ArtifactDir:     cfg.Executor.ArtifactDir,
		CategoryCap:     cfg.Executor.CategoryCap,
	}
}

func newAnalyzer(cfg *config.Config, log *zap.Logger) (*analyzer.Analyzer, error) {
	return analyzer.New(log, analyzer.Options{
		StableTimeout: time.Duration(cfg.Analyzer.StableTimeoutSeconds) * time.Second,
		MaxLinks:      cfg.Analyzer.MaxLinks,
		MaxTables:     cfg.Analyzer.MaxTables,
		MaxWidgets:    cfg.Analyzer.MaxWidgets,
	})
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP API server",
		Action: func(c *cli.Context) error {
			_ = godotenv.Load()

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := newLogger(cfg.Server.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			auth.InitJWT(cfg.JWT.Secret)

			db, err := database.Init(cfg)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			if err := database.SeedDefaultData(db); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}

			b, err := newBrowser(cfg, log)
			if err != nil {
				return fmt.Errorf("init browser: %w", err)
			}
			defer b.Close()

			an, err := newAnalyzer(cfg, log)
			if err != nil {
				return err
			}
			rep, err := reports.NewWriter(cfg.Reports.Dir)
			if err != nil {
				return fmt.Errorf("init reports: %w", err)
			}
			hist := history.NewLog(cfg.Reports.HistorySize, db, log)
			if err := hist.Init(); err != nil {
				log.Warn("history load failed", zap.Error(err))
			}

			runner := &services.Runner{
				Browser:   b,
				Analyzer:  an,
				Generator: generator.New(log),
				BaseCfg:   executorConfig(cfg),
				Reports:   rep,
				History:   hist,
				Log:       log,
			}

			rec := recorder.NewManager(b,
				time.Duration(cfg.Recorder.PollIntervalMs)*time.Millisecond, log)

			sched := services.NewScheduler(db, runner, log)
			if err := sched.Start(); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}

			h := handlers.New(cfg, db, runner, rec, hist, rep, sched, log)
			router := routes.SetupRoutes(cfg, h)

			srv := &http.Server{
				Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler: router,
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-quit
				log.Info("shutting down")
				sched.Stop()
				hist.Flush()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			log.Info("server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the full pipeline once against a URL and print the summary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "target page URL", Required: true},
			&cli.StringFlag{Name: "username", Usage: "login username for credential-gated cases"},
			&cli.StringFlag{Name: "password", Usage: "login password for credential-gated cases"},
			&cli.StringFlag{Name: "otp", Usage: "one-time code for login workflows"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent browser sessions"},
			&cli.IntFlag{Name: "timeout", Usage: "run deadline in seconds"},
			&cli.IntFlag{Name: "cap", Usage: "per-category case cap for negative/ui/functional"},
		},
		Action: func(c *cli.Context) error {
			_ = godotenv.Load()

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := newLogger(cfg.Server.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			b, err := newBrowser(cfg, log)
			if err != nil {
				return fmt.Errorf("init browser: %w", err)
			}
			defer b.Close()

			an, err := newAnalyzer(cfg, log)
			if err != nil {
				return err
			}
			rep, err := reports.NewWriter(cfg.Reports.Dir)
			if err != nil {
				return fmt.Errorf("init reports: %w", err)
			}

			runner := &services.Runner{
				Browser:   b,
				Analyzer:  an,
				Generator: generator.New(log),
				BaseCfg:   executorConfig(cfg),
				Reports:   rep,
				History:   history.NewLog(cfg.Reports.HistorySize, nil, log),
				Log:       log,
			}

			var creds *generator.Credentials
			if c.String("username") != "" || c.String("password") != "" {
				creds = &generator.Credentials{
					Username: c.String("username"),
					Password: c.String("password"),
					OTP:      c.String("otp"),
				}
			}

			res, err := runner.Execute(context.Background(), c.String("url"), creds, services.RunOverrides{
				Workers:        c.Int("workers"),
				TimeoutSeconds: c.Int("timeout"),
				CategoryCap:    c.Int("cap"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Run %s against %s\n", res.RunID, res.Model.URL)
			fmt.Printf("  total:   %d\n", res.Summary.Total)
			fmt.Printf("  passed:  %d\n", res.Summary.Passed)
			fmt.Printf("  failed:  %d\n", res.Summary.Failed)
			fmt.Printf("  skipped: %d\n", res.Summary.Skipped)
			if res.ReportPath != "" {
				fmt.Printf("  report:  %s\n", res.ReportPath)
			}
			if res.Summary.Failed > 0 {
				return cli.Exit("some cases failed", 1)
			}
			return nil
		},
	}
}
