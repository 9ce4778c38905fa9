package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/appconfig"
	"pkt.systems/termspace/internal/termhost"
)

func newSessionsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List terminal sessions on the running host",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			client, err := termhost.NewClient(cfg.Host.Dir, logger)
			if err != nil {
				return err
			}
			if !client.Available() {
				return fmt.Errorf("no terminal host running in %s", cfg.Host.Dir)
			}
			sessions, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tWORKSPACE\tTERMINAL\tSTATUS\tSIZE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dx%d\n",
					s.ID, s.Key.Workspace, s.Key.Terminal, s.Status, s.Cols, s.Rows)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
