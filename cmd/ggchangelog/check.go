package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saint0x/ggchangelog/pkg/client"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check if the server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleCheck(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func handleCheck(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.New(serverURL, nil).Health(ctx); err != nil {
		return fmt.Errorf("server is not running at %s: %w", serverURL, err)
	}

	fmt.Println("Server is running!")
	return nil
}
