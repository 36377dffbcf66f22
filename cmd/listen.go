// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/dispatch"
	"github.com/pifarm/fieldlink/pkg/metrics"
	"github.com/pifarm/fieldlink/pkg/store"
)

var (
	listenDryRun  bool
	statsInterval int
	useTUI        bool
	showAll       bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Serve the sensor link and store readings",
	Long: `Serve the microcontroller's link: answer time requests and store pH and PPM
readings against the current user.

Malformed lines, store failures and a missing current user are logged and
the link keeps running. If the link drops, it is reopened with exponential
backoff until the command is interrupted.

Statistics summaries are printed at --stats-interval. When metrics.addr is
configured, /metrics and /healthz are served on that address.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenDryRun, "dry-run", false, "Keep readings in memory instead of the configured store")
	listenCmd.Flags().IntVar(&statsInterval, "stats-interval", 60, "Statistics update interval (seconds, 0 disables)")
	listenCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	listenCmd.Flags().BoolVar(&showAll, "show-all", false, "Show every event in the terminal UI (not just errors)")
}

// linkStatus reports link transitions to the text or terminal front end
type linkStatus func(up bool, info string, err error)

// listener owns everything one listen invocation shares across reconnects
type listener struct {
	clk        clock.Clock
	backend    store.Backend
	stats      *dispatch.Statistics
	collectors *metrics.Collectors
	channelUp  atomic.Bool
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := &listener{
		clk:        systemClock(),
		stats:      dispatch.NewStatistics(),
		collectors: metrics.New(),
	}

	backend, err := openStore(ctx, l.clk, listenDryRun)
	if err != nil {
		return err
	}
	defer backend.Close()
	l.backend = backend

	if cfg.Metrics.Addr != "" {
		accessLog := log.WriterLevel(logrus.DebugLevel)
		defer accessLog.Close()
		router := metrics.NewRouter(l.collectors, l.health)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, router, accessLog, log); err != nil {
				log.WithError(err).Error("Ops server stopped")
			}
		}()
	}

	if useTUI {
		return l.runTUI(ctx)
	}
	return l.runText(ctx)
}

func (l *listener) health() error {
	if !l.channelUp.Load() {
		return errors.New("link down")
	}
	return nil
}

// runText logs events and prints periodic statistics to the console
func (l *listener) runText(ctx context.Context) error {
	fmt.Printf("Fieldlink - Listen Mode\n")
	fmt.Printf("%s\n", linkDescription())
	fmt.Printf("Store: %s\n", storeName())
	if statsInterval > 0 {
		fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fmt.Println()
					fmt.Print(l.stats.String())
					fmt.Println()
				}
			}
		}()
	}

	err := l.serve(ctx, func(up bool, info string, err error) {
		switch {
		case up:
			log.WithField("link", info).Info("Link open")
		case err != nil:
			log.WithError(err).Warn("Link lost")
		}
	})

	fmt.Println()
	fmt.Print(l.stats.String())
	return err
}

// runTUI drives the link from a goroutine and hands every event to the
// terminal UI
func (l *listener) runTUI(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log lines would tear the alternate screen
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" || cfg.Log.Output == "stderr" {
		log.SetOutput(io.Discard)
	}

	m := initialModel(linkDescription(), storeName(), statsInterval, showAll, l.stats, l.backend)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		done <- l.serve(ctx, func(up bool, info string, err error) {
			p.Send(linkMsg{up: up, info: info, err: err})
		}, func(res dispatch.Result) {
			p.Send(resultMsg(res))
		})
	}()

	_, runErr := p.Run()
	cancel()
	<-done

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// serve keeps a dispatcher running over the link until ctx is cancelled,
// reopening the link with backoff whenever it closes
func (l *listener) serve(ctx context.Context, status linkStatus, observers ...dispatch.Observer) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	opts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithPollInterval(cfg.Serial.PollInterval),
		dispatch.WithObserver(l.stats.Observe),
		dispatch.WithObserver(l.collectors.ObserveResult),
	}
	for _, o := range observers {
		opts = append(opts, dispatch.WithObserver(o))
	}

	first := true
	for {
		if !first {
			wait := bo.NextBackOff()
			log.WithField("wait", wait).Info("Reopening link")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			l.collectors.Reconnects.Inc()
		}
		first = false

		ch, info, err := openChannel(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			status(false, "", err)
			continue
		}
		bo.Reset()

		l.setUp(true)
		status(true, info, nil)

		d := dispatch.New(ch, l.clk, l.backend, l.backend, opts...)
		err = d.Run(ctx)

		ch.Close()
		l.setUp(false)

		if ctx.Err() != nil {
			return nil
		}
		status(false, info, err)
	}
}

func (l *listener) setUp(up bool) {
	l.channelUp.Store(up)
	l.collectors.SetChannelUp(up)
}

func linkDescription() string {
	if cfg.Bridge.URL != "" {
		return fmt.Sprintf("WebSocket: %s", cfg.Bridge.URL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud)
}

func storeName() string {
	if listenDryRun {
		return "memory (dry run)"
	}
	return cfg.Store.Backend
}
