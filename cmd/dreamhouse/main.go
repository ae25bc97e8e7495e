package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "dreamhouse",
	Short:         "Generate illustrated house designs from your preferences",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(designCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(videoCmd)
	rootCmd.AddCommand(recolorCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
