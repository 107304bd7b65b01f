// Command team-poll watches one agent's team-table inbox, auto-replies to
// routine messages, and escalates questions to a human operator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brickmii/team-table/pkg/config"
	"github.com/Brickmii/team-table/pkg/poll"
	"github.com/Brickmii/team-table/pkg/store"
	"github.com/Brickmii/team-table/pkg/telemetry"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		dbPath      = flag.String("db", "", "override storage path")
		interval    = flag.Duration("interval", 0, "override polling interval")
		maxMessages = flag.Int("max-messages", 0, "override auto-reply budget before escalating")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: team-poll [flags] <agent-name>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *configPath, *dbPath, *interval, *maxMessages); err != nil {
		fmt.Fprintln(os.Stderr, "team-poll:", err)
		os.Exit(1)
	}
}

func run(agent, configPath, dbPath string, interval time.Duration, maxMessages int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	logger, _ := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	st, err := store.Open(cfg.Storage.Path, cfg.Storage.BusyTimeout())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if interval <= 0 {
		interval = cfg.Poll.Interval()
	}
	if maxMessages <= 0 {
		maxMessages = cfg.Poll.MaxReplies
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon := poll.New(st, agent,
		poll.WithInterval(interval),
		poll.WithMaxReplies(maxMessages),
		poll.WithLogger(logger),
	)
	err = daemon.Run(ctx)
	switch {
	case errors.Is(err, poll.ErrEscalated):
		logger.Warn("stopped after escalation; respond manually")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}
