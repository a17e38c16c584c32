package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reqsyncd version %s (%s)\n", Version, Build)
		fmt.Printf("  go: %s\n", runtime.Version())
		if commit := resolveCommitHash(); commit != "" {
			fmt.Printf("  commit: %s\n", commit)
		}
	},
}

// resolveCommitHash reads the vcs revision stamped into the binary, if any.
func resolveCommitHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			if len(setting.Value) > 12 {
				return setting.Value[:12]
			}
			return setting.Value
		}
	}
	return ""
}
