package main

import (
	"github.com/spf13/cobra"
)

// newReadOutCmd shares program's session (sync/identify/read-out); a
// read-out invocation typically supplies --output without --input, so
// no write or erase phase runs.
func newReadOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-out",
		Short: "Sync, identify, and read a region of the device out to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession()
		},
	}
}
