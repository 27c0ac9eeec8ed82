package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/YuminosukeSato/xclf/pkg/log"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "xclf: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp()
	return app.RunContext(ctx, args)
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "xclf",
		Usage:   "extreme multi-label classification with label trees",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"XCLF_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json, console, slog)",
			Value:   "json",
			EnvVars: []string{"XCLF_LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "address to serve prometheus metrics on, e.g. :2471",
			EnvVars: []string{"XCLF_METRICS_LISTEN"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		if err := setupLogging(cctx.String("log-level"), cctx.String("log-format")); err != nil {
			return err
		}
		if addr := cctx.String("metrics-listen"); addr != "" {
			go func() {
				if err := startMetrics(addr); err != nil {
					log.GetLoggerWithName("xclf").Error("metrics server failed", err, "listen", addr)
				}
			}()
		}
		return nil
	}

	app.Commands = []*cli.Command{
		cmdTrain,
		cmdTest,
		cmdPredict,
		cmdTree,
	}

	app.CommandNotFound = func(cctx *cli.Context, name string) {
		fmt.Fprintf(cctx.App.ErrWriter, "unknown command %q\n\n", name)
		_ = cli.ShowAppHelp(cctx)
	}
	return app
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "json", "":
		log.SetProvider(log.NewZerologProvider(os.Stderr, lvl))
	case "console":
		log.SetProvider(log.NewConsoleProvider(os.Stderr, lvl))
	case "slog":
		p, err := log.SetupLogger(level, os.Stderr)
		if err != nil {
			return err
		}
		log.SetProvider(p)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func startMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
