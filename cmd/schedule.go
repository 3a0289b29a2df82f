package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/recreserve/internal/config"
	"github.com/example/recreserve/internal/domain/reservation"
	"github.com/example/recreserve/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [file]",
		Short: "Validate a schedule file and list its slots in run order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.ScheduleFile
			}

			facilities, err := schedule.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pairs := reservation.Pairs(facilities)
			for i, p := range pairs {
				fmt.Fprintf(out, "%d. %s link=%s\n", i+1, reservation.Describe(p.Facility, p.Slot), p.Facility.Link)
			}
			fmt.Fprintf(out, "%d facilities, %d slots\n", len(facilities), len(pairs))
			return nil
		},
	}
}
