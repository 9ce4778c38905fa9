package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/appconfig"
	"pkt.systems/termspace/internal/termhost"
	"pkt.systems/termspace/schema"
)

func newAttachCmd() *cobra.Command {
	var cfgPath string
	var workspace string
	var terminalID string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the current terminal to a host session",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if terminalID == "" {
				return errors.New("--terminal is required")
			}
			client, err := termhost.NewClient(cfg.Host.Dir, logger)
			if err != nil {
				return err
			}
			if !client.Available() {
				return fmt.Errorf("no terminal host running in %s", cfg.Host.Dir)
			}

			stdin := int(os.Stdin.Fd())
			if !term.IsTerminal(stdin) {
				return errors.New("attach requires an interactive terminal")
			}
			cols, rows, err := term.GetSize(stdin)
			if err != nil {
				return err
			}

			key := schema.TerminalKey{
				Workspace: schema.WorkspaceID(workspace),
				Terminal:  schema.TerminalID(terminalID),
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			id, _, scrollback, _, err := client.Attach(ctx, key, cols, rows)
			if err != nil {
				return err
			}
			stream, err := client.Stream(ctx, id)
			if err != nil {
				return err
			}

			oldState, err := term.MakeRaw(stdin)
			if err != nil {
				return err
			}
			defer func() { _ = term.Restore(stdin, oldState) }()

			if scrollback != "" {
				_, _ = os.Stdout.WriteString(scrollback)
			}

			winch := make(chan os.Signal, 1)
			signal.Notify(winch, unix.SIGWINCH)
			defer signal.Stop(winch)
			go func() {
				for range winch {
					if c, r, err := term.GetSize(stdin); err == nil {
						_ = client.Resize(ctx, id, c, r)
					}
				}
			}()

			go func() {
				buf := make([]byte, 4096)
				for {
					n, err := os.Stdin.Read(buf)
					if n > 0 {
						if werr := client.Write(ctx, id, buf[:n]); werr != nil {
							cancel()
							return
						}
					}
					if err != nil {
						cancel()
						return
					}
				}
			}()

			for msg := range stream {
				if len(msg.Data) > 0 {
					_, _ = os.Stdout.Write(msg.Data)
				}
				if msg.Exit != nil {
					_ = term.Restore(stdin, oldState)
					fmt.Fprintf(cmd.OutOrStdout(), "\nsession exited (code %d)\n", msg.Exit.Code)
					return nil
				}
			}
			if ctx.Err() != nil {
				return nil
			}
			return io.ErrUnexpectedEOF
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "default", "workspace id")
	cmd.Flags().StringVarP(&terminalID, "terminal", "t", "", "terminal id")
	return cmd
}
