// Command jobharvest scrapes job postings, builds the merged dataset and
// serves it over a local HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: jobharvest [flags] <command> [command flags]

commands:
  scrape   scrape the configured searches (or -job/-location) into snapshots
  build    merge snapshots and write the normalized table
  serve    run the HTTP API and the optional scheduler

flags:
`

func main() {
	fs := flag.NewFlagSet("jobharvest", flag.ExitOnError)
	dataDir := fs.String("data", "", "data directory holding config.yml (default $JOBHARVEST_DATA_DIR or ./data)")
	defaults := fs.String("defaults", "config", "directory with the shipped config.yml and rules.yml")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(*dataDir, *defaults, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	cmd, args := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "scrape":
		err = a.cmdScrape(ctx, args)
	case "build":
		err = a.cmdBuild(ctx, args)
	case "serve":
		err = a.cmdServe(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error(cmd+" failed", "err", err)
		os.Exit(1)
	}
}
