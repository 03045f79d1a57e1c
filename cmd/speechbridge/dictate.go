package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/speechbridge/internal/bridge"
	"github.com/chaz8081/speechbridge/internal/hotkey"
	"github.com/chaz8081/speechbridge/internal/inject"
)

func dictateCmd() *cobra.Command {
	var (
		language    string
		showPartial bool
	)
	cmd := &cobra.Command{
		Use:   "dictate",
		Short: "Push-to-talk dictation into the focused application",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout(), a.cfg, "dictate")

			mode, err := hotkey.ParseMode(a.cfg.Hotkey.Mode)
			if err != nil {
				return err
			}
			injector, err := inject.NewInjector(inject.Method(a.cfg.Inject.Method), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			b, cleanup, err := a.newBridge()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			b.Initialize(ctx)
			if !b.IsRecognitionAvailable(ctx) {
				return fmt.Errorf("speech recognition is not available; check the API key and microphone")
			}
			if !b.HasPermission() && !b.RequestPermission(ctx) {
				return fmt.Errorf("microphone permission denied")
			}

			listener := hotkey.NewListener(a.cfg.Hotkey.Keys, mode)
			go listener.Start()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			d := &dictation{
				bridge:   b,
				injector: injector,
				listener: listener,
				opts:     bridge.StartOptions{Language: language, ShowPartial: showPartial},
				logger:   a.logger,
			}
			a.logger.Info("ready", "hotkey", listener.Keys(), "mode", mode)

			events := listener.Events()
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						a.logger.Info("hotkey listener stopped")
						return nil
					}
					d.handle(ctx, ev)
				case sig := <-sigCh:
					a.logger.Info("shutting down", "signal", sig.String())
					closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					_ = b.Close(closeCtx)
					cancel()
					cleanup()
					// Exit directly to avoid gohook's C cleanup crash.
					os.Exit(0)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "recognition language (default from config or locale)")
	cmd.Flags().BoolVar(&showPartial, "partial", false, "log partial results while speaking")
	return cmd
}

// dictation turns hotkey events into listening sessions and injects the best
// match of each finished session.
type dictation struct {
	bridge   *bridge.Bridge
	injector inject.TextInjector
	listener *hotkey.Listener
	opts     bridge.StartOptions
	logger   *slog.Logger
}

func (d *dictation) handle(ctx context.Context, ev hotkey.Event) {
	switch ev.Type {
	case hotkey.EventStart:
		s, err := d.bridge.StartListening(ctx, d.opts)
		if err != nil {
			d.logger.Warn("failed to start listening", "error", err)
			d.listener.Reset()
			return
		}
		d.logger.Info("listening...", "language", s.Language)
		go d.deliver(s)

	case hotkey.EventStop:
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := d.bridge.StopListening(stopCtx); err != nil && bridge.KindOf(err) != bridge.KindNoActiveSession {
			d.logger.Debug("stop listening", "error", err)
		}
	}
}

// deliver follows a session to its end and injects the best match.
func (d *dictation) deliver(s *bridge.Session) {
	for ev := range s.Events() {
		if ev.Err == nil && ev.Result.IsPartial {
			d.logger.Info("partial", "text", ev.Result.Best())
		}
	}
	d.listener.Reset()

	if err := s.Err(); err != nil {
		d.logger.Warn("session failed", "error", err)
		return
	}
	res := s.Result()
	text := res.Best()
	if text == "" {
		d.logger.Info("no speech detected", "duration", time.Since(s.StartedAt).Round(time.Millisecond))
		return
	}
	d.logger.Info("recognized", "text", text, "confidence", res.Confidence, "audio", res.AudioURI)
	if err := d.injector.Inject(text); err != nil {
		d.logger.Warn("text injection failed", "error", err)
	}
}
