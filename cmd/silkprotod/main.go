// Package main provides the CLI entry point for silkprotod, a reference
// server and client for the session runtime implemented under internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/silkrelay/silkproto/internal/config"
	"github.com/silkrelay/silkproto/internal/handler"
	"github.com/silkrelay/silkproto/internal/logging"
	"github.com/silkrelay/silkproto/internal/metrics"
	"github.com/silkrelay/silkproto/internal/protostate"
	"github.com/silkrelay/silkproto/internal/ratelimit"
	"github.com/silkrelay/silkproto/internal/recovery"
	"github.com/silkrelay/silkproto/internal/session"
	"github.com/silkrelay/silkproto/internal/wire"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "silkprotod",
		Short:   "Reference server and client for the session runtime",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dialCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the silkprotod version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and run the responder side of the handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func dialCmd() *cobra.Command {
	var addr, text string
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a silkprotod server and send one ping frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(addr, text)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:15779", "server address")
	cmd.Flags().StringVar(&text, "text", "ping", "payload string to send")
	return cmd
}

const opcodePing wire.Opcode = 0x9001

func echoService(logger *slog.Logger) *handler.Registry {
	reg := handler.NewRegistry()
	reg.RegisterHandler(opcodePing, func(ctx context.Context, p handler.Peer, m *wire.Message) error {
		text, err := m.ReadString()
		if err != nil {
			return err
		}
		logger.Info("received ping", logging.KeyRemoteAddr, p.RemoteAddr(), "text", text)
		reply := wire.NewMessage(opcodePing)
		reply.WriteString(text)
		return p.Send(reply)
	})
	return reg
}

func runServe(cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	m := metrics.Default()

	ln, err := net.Listen("tcp", cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("serve: listen: %w", err)
	}
	defer ln.Close()
	logger.Info("listening", logging.KeyComponent, "serve", "addr", ln.Addr().String())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		defer recovery.RecoverWithLog(logger, "serve.shutdownWatcher")
		<-ctx.Done()
		ln.Close()
	}()

	handshakeOpts := protostate.Options(cfg.Handshake.OptionsByte())
	limiter := ratelimit.New(cfg.RateLimit.FramesPerSecond, cfg.RateLimit.Burst)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("serve: accept: %w", err)
			}
		}

		s := session.NewResponder(conn, session.Options{
			Registry:         echoService(logger),
			Logger:           logger,
			Metrics:          m,
			Limiter:          limiter,
			HandshakeOptions: handshakeOpts,
			OnDisconnect: func(s *session.Session, reason session.DisconnectReason, err error) {
				stats := s.Stats()
				logger.Info("session ended",
					logging.KeyReason, reason.String(),
					"frames_received", stats.FramesReceived,
					"bytes_received", humanize.Bytes(stats.BytesReceived))
			},
		})
		go s.Run(ctx)
	}
}

func runDial(addr, text string) error {
	logger := logging.NewLogger("info", "auto")

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	reg := handler.NewRegistry()
	done := make(chan struct{})
	reg.RegisterHandler(opcodePing, func(ctx context.Context, p handler.Peer, m *wire.Message) error {
		reply, err := m.ReadString()
		if err != nil {
			return err
		}
		logger.Info("received reply", "text", reply)
		close(done)
		return nil
	})

	s := session.NewInitiator(conn, session.Options{Registry: reg, Logger: logger})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go s.Run(ctx)

	select {
	case <-s.Ready():
	case <-ctx.Done():
		return fmt.Errorf("dial: handshake timed out")
	}

	m := wire.NewMessage(opcodePing)
	m.WriteString(text)
	if err := s.Send(m); err != nil {
		return fmt.Errorf("dial: send: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("dial: timed out waiting for reply")
	}
	return s.Disconnect()
}
