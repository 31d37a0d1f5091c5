package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicecall/internal/audio"
	"github.com/dkeye/voicecall/internal/audio/miniaudio"
	"github.com/dkeye/voicecall/internal/client"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voicecall-client",
		Short:         "Join the relay and place or answer one-to-one voice calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	f := cmd.Flags()
	f.String("server", "", "relay signaling URL, e.g. ws://localhost:8080/api/ws/signal")
	f.String("id", "", "client id to register as (random when empty)")
	f.String("call", "", "client id to call once it is online")
	f.Bool("auto-answer", false, "accept incoming calls")
	f.String("encoding", "", "audio frame encoding: json or rtp")
	f.String("log-level", "", "log level")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	config.SetupLogging("info")
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.LogLevel)

	self := domain.NewClientID()
	if cfg.ClientID != "" {
		if self, err = domain.ParseClientID(cfg.ClientID); err != nil {
			return err
		}
	}
	var target domain.ClientID
	if cfg.Call != "" {
		if target, err = domain.ParseClientID(cfg.Call); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tr, err := client.Dial(ctx, cfg.ServerURL, client.TransportOptions{Encoding: cfg.AudioEncoding})
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.ServerURL, err)
	}

	opts := client.Options{Self: self, Signaler: tr}
	backend, err := miniaudio.Open()
	if err != nil {
		log.Error().Err(err).Msg("no audio backend, running without devices")
		opts.Renderer = audio.NewNullRenderer(cfg.PlaybackRate)
	} else {
		defer backend.Close()
		out, err := backend.NewPlayback(cfg.PlaybackRate)
		if err != nil {
			log.Error().Err(err).Msg("no playback device, received audio is discarded")
			opts.Renderer = audio.NewNullRenderer(cfg.PlaybackRate)
		} else {
			defer out.Close()
			opts.Renderer = out
		}
		opts.Capture = func() (audio.CaptureDevice, error) {
			return backend.NewCapture(cfg.CaptureBlock), nil
		}
	}
	agent := client.NewAgent(opts)

	// the transport outlives the agent so a hang-up on shutdown is flushed
	trCtx, trCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer trCancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tr.Run(trCtx) })
	g.Go(func() error {
		err := agent.Run(ctx)
		tr.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		watch(ctx, agent, self, target, cfg.AutoAnswer)
		return nil
	})

	log.Info().Str("module", "client").Str("client_id", string(self)).Msg("started")
	return g.Wait()
}

// watch prints call progress and drives --call and --auto-answer.
func watch(ctx context.Context, agent *client.Agent, self, target domain.ClientID, autoAnswer bool) {
	called := false
	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-agent.Updates():
			line := fmt.Sprintf("[%s] %s", self, s.StateName)
			if s.Peer != "" {
				line += fmt.Sprintf(" peer=%s", s.Peer)
			}
			if s.State == domain.CallConnected {
				line += fmt.Sprintf(" %02d:%02d", s.DurationSeconds/60, s.DurationSeconds%60)
			}
			if s.EndReason != "" && s.State == domain.CallEnded {
				line += " (" + s.EndReason + ")"
			}
			line += fmt.Sprintf(" online=%v", s.Roster)
			if line != last {
				fmt.Println(line)
				last = line
			}

			if target != "" && !called && slices.Contains(s.Roster, target) {
				called = true
				go func() {
					if err := agent.Call(ctx, target); err != nil {
						log.Warn().Err(err).Str("module", "client").Msg("call")
					}
				}()
			}
			if autoAnswer && s.State == domain.CallRinging && s.Direction == domain.Incoming {
				go func() {
					if err := agent.Accept(ctx); err != nil && !errors.Is(err, client.ErrNoCall) {
						log.Warn().Err(err).Str("module", "client").Msg("accept")
					}
				}()
			}
		}
	}
}
