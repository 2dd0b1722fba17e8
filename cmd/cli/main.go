package main

import (
	"log"
	"os"

	"github.com/absmach/fedcoord/cli"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

const defCoordinatorURL = "http://localhost:7070"

func main() {
	sdkConf := sdk.Config{
		CoordinatorURL:  defCoordinatorURL,
		TLSVerification: false,
	}
	if u := os.Getenv("FEDCOORD_COORDINATOR_URL"); u != "" {
		sdkConf.CoordinatorURL = u
	}

	rootCmd := &cobra.Command{
		Use:   "fedcoord-cli",
		Short: "Federated averaging coordinator command line client",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&sdkConf.CoordinatorURL,
		"coordinator-url",
		"m",
		sdkConf.CoordinatorURL,
		"Coordinator URL",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&sdkConf.TLSVerification,
		"tls-verification",
		"",
		sdkConf.TLSVerification,
		"Verify the coordinator TLS certificate",
	)

	rootCmd.AddCommand(
		cli.NewStatusCmd(),
		cli.NewWorkersCmd(),
		cli.NewRoundsCmd(),
		cli.NewModelCmd(),
		cli.NewScheduleCmd(),
		cli.NewInitCmd(),
		cli.NewWatchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
