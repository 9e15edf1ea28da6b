package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbvec/internal/cli"
	"github.com/cloo-solutions/kbvec/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbvecd",
		Short: "kbvec daemon and CLI",
		Long:  "kbvec chunks, embeds and compares knowledge-base documents. Run with no arguments to start the API server.",
		// errors are printed once below
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.EmbedCmd())
	rootCmd.AddCommand(admin.SimilarCmd())
	rootCmd.AddCommand(admin.PairsCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
