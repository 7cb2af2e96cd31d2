package main

import (
	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Operator tooling for goIdentity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (GOIDENTITY_* variables override it)")

	load := func() (goIdentity.Config, error) {
		return goIdentity.LoadConfig(configPath)
	}

	root.AddCommand(newKeygenCmd())
	root.AddCommand(newHashPasswordCmd(load))
	root.AddCommand(newLoadtestCmd(load))
	return root
}
