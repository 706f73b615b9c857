package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/echoself-ai/echoself/internal/cli"
	"github.com/echoself-ai/echoself/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "echoselfd",
		Short: "Echoself retrieval daemon",
		Long:  "Echoself daemon for running the retrieval API server and inspecting twins",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.TwinCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
