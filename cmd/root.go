package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Payment reconciliation microservice",
	Long:  "A reconciliation microservice that keeps merchant orders and digital-currency gateway payments in agreement.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
