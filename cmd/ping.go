package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/recreserve/internal/application/usecases"
	"github.com/example/recreserve/internal/config"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "ping [telegram|imap]",
		Short:     "Check the notification channel or the confirmation inbox",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"telegram", "imap"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			var p usecases.Pinger
			switch args[0] {
			case "telegram":
				if err := cfg.Require(config.TelegramVars...); err != nil {
					return err
				}
				p, err = newNotifier(cfg)
			case "imap":
				if err := cfg.Require(config.IMAPVars...); err != nil {
					return err
				}
				if err := cfg.RequireMailFilter(); err != nil {
					return err
				}
				p, err = newCodeRetriever(cfg, nil)
			default:
				return fmt.Errorf("unknown provider: %s", args[0])
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			uc := usecases.PingProvider{Provider: p}
			if err := uc.Execute(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", p.Name())
			return nil
		},
	}
}
