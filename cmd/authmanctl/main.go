package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "authmanctl",
		Short:        "Operate an authman deployment",
		Long:         "Run schema migrations and manage user accounts of an authman database. Reads the same environment as the server.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMigrateCmd(), newUserCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
