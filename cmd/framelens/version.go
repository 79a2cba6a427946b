package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set at build time via ldflags).
var (
	version   = "0.1.0"
	gitCommit = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the framelens version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("framelens %s (%s)\n", version, gitCommit)
		},
	}
}
