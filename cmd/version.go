package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "v1.2.0"

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show dripper version",
		RunE:  versionHandler,
	}
}

func versionHandler(cmd *cobra.Command, args []string) error {
	fmt.Println("dripper " + version)
	return nil
}
