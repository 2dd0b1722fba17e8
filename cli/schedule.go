package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/schedule"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewScheduleCmd prints the learning rate and evaluation plan of a run
// without contacting the coordinator.
func NewScheduleCmd() *cobra.Command {
	def := fedcoord.DefaultConfig().Coordinator
	var (
		configPath string
		rounds     = def.Rounds
		lr         = def.LearningRate
		period     = def.EvalEvery
		evalOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the training schedule",
		Long:  `Show the learning rate broadcast in every round and the rounds that trigger an evaluation.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if configPath != "" {
				cfg, err := fedcoord.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				rounds, lr, period = cfg.Coordinator.Rounds, cfg.Coordinator.LearningRate, cfg.Coordinator.EvalEvery
			}

			rates := schedule.NewDecay(lr).Rates(rounds)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROUND\tLEARNING RATE\tEVALUATE")
			for i, rate := range rates {
				n := uint64(i) + 1
				eval := schedule.ShouldEvaluate(n, rounds, period)
				switch {
				case eval:
					fmt.Fprintf(w, "%d\t%.6f\t%s\n", n, rate, color.GreenString("yes"))
				case !evalOnly:
					fmt.Fprintf(w, "%d\t%.6f\t-\n", n, rate)
				}
			}
			if err := w.Flush(); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Read the schedule from a configuration file")
	cmd.Flags().Uint64VarP(&rounds, "rounds", "r", rounds, "Number of training rounds")
	cmd.Flags().Float64Var(&lr, "lr", lr, "Initial learning rate")
	cmd.Flags().Uint64Var(&period, "eval-every", period, "Evaluation period in rounds")
	cmd.Flags().BoolVar(&evalOnly, "eval-only", false, "Only list rounds that trigger an evaluation")

	return cmd
}
