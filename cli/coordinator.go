package cli

import (
	"strconv"

	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run status",
		Long:  `Show the progress of the federated run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := fsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}
}

func NewWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List workers",
		Long:  `List the trainers and the evaluator taking part in the run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListWorkers(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}
	addPageFlags(cmd)

	return cmd
}

func NewRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds [list|view]",
		Short: "Round records",
		Long:  `List and view federated round records.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rounds",
		Long:  `List round records.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListRounds(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <round>",
		Short: "View round",
		Long:  `View a round record with its worker outcomes and evaluations.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			rec, err := fsdk.GetRound(n)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)
	addPageFlags(cmd)

	return cmd
}

func NewModelCmd() *cobra.Command {
	var (
		layersOnly bool
		checkpoint string
	)

	cmd := &cobra.Command{
		Use:   "model",
		Short: "Global model",
		Long:  `Show the current broadcast model, or a stored checkpoint such as "final" or "round-11".`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			var (
				m   sdk.ModelResponse
				err error
			)
			switch checkpoint {
			case "":
				m, err = fsdk.GlobalModel()
			default:
				m, err = fsdk.Checkpoint(checkpoint)
			}
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if !layersOnly {
				logJSONCmd(*cmd, m)

				return
			}

			type layer struct {
				Name  string `json:"name"`
				Shape []int  `json:"shape"`
			}
			summary := struct {
				Round     uint64  `json:"round"`
				NumParams int     `json:"num_params"`
				Layers    []layer `json:"layers"`
			}{
				Round:     m.Round,
				NumParams: m.NumParams,
			}
			for _, l := range m.Model.Layers {
				summary.Layers = append(summary.Layers, layer{Name: l.Name, Shape: l.Tensor.Shape})
			}
			logJSONCmd(*cmd, summary)
		},
	}
	cmd.Flags().BoolVar(&layersOnly, "layers", false, "Only show layer names and shapes")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Show a stored checkpoint instead of the current model")

	return cmd
}

func addPageFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)
}
