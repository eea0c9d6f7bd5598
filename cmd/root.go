package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the weekview application
var rootCmd = &cobra.Command{
	Use:   "weekview",
	Short: "Calendar API for the current week of the signed-in user",
	Long: `weekview serves a small web API over the signed-in user's Microsoft 365
calendar. Callers authenticate with a bearer credential carrying the
Calendars.ReadWrite scope and can list this week's events or create new ones.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "weekview version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
