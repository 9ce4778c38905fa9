package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termspace"
	"pkt.systems/termspace/core"
	"pkt.systems/termspace/internal/appconfig"
	"pkt.systems/termspace/internal/termhost"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the terminal host and workspace engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			serverCfg := toServerConfig(cfg)
			deps := termspace.ServerDeps{
				ServiceDeps: core.ServiceDeps{Logger: logger},
			}
			server, err := termspace.New(serverCfg, deps, termspace.WithHost(), termspace.WithEngine())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("terminal host listening", "dir", serverCfg.Host.Dir)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func newHostCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start only the terminal host daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			server, err := termspace.New(toServerConfig(cfg), termspace.ServerDeps{
				ServiceDeps: core.ServiceDeps{Logger: logger},
			}, termspace.WithHost())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("host stop failed", "err", err)
				}
			}()
			logger.Info("terminal host listening", "dir", cfg.Host.Dir)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toServerConfig(cfg appconfig.Config) termspace.ServerConfig {
	return termspace.ServerConfig{
		Service: cfg.ServiceConfig(),
		Host: termhost.ServerConfig{
			Dir:         cfg.Host.Dir,
			Shell:       cfg.Host.Shell,
			Scrollback:  cfg.Host.ScrollbackMaxBytes,
			IdleTimeout: time.Duration(cfg.Host.IdleTimeoutMinutes) * time.Minute,
		},
	}
}
