package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/metaphotor/metaphotor/core"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "metaphotor",
	Short: "Read, edit and catalog photo and video metadata",
	Long: `metaphotor reads and writes the metadata of JPEG photos and video files
(title, description, tags, comment, creation time and location) and keeps a
catalog of a media library in sync with it.

Settings come from METAPHOTOR_* environment variables, optionally loaded
from a .env file in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
	rootCmd.AddCommand(inspectCmd, editCmd, scanCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
}
