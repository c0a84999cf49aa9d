// Package main implements casctl, a command-line client for the CAS engine's
// buffered writer (§4.F) and depot/ticket operations (§4.I, §4.H) exercised
// over the §6 HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "casctl",
	Short:   "Command-line client for a CAS engine instance",
	Long:    `casctl drives the buffered writer and depot/ticket operations of a running casd instance over its HTTP API.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("casctl version %s\ncommit %s\n", version, commit))

	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8077", "casd base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token (user or agent) to authenticate with")
	rootCmd.PersistentFlags().String("realm", "@me", "target realm (@me, a realm name, or tkt_<id>)")

	rootCmd.AddCommand(putCmd, getCmd, treeCmd, depotCmd, ticketCmd)

	depotCmd.AddCommand(depotListCmd, depotCreateCmd, depotRootCmd)
	ticketCmd.AddCommand(ticketCreateCmd)

	ticketCreateCmd.Flags().StringSlice("scope", nil, "restrict the ticket to these keys (repeatable)")
	ticketCreateCmd.Flags().Bool("writable", false, "issue a commit-capable ticket")
	ticketCreateCmd.Flags().Int64("quota", 0, "commit byte quota (0 means unlimited)")

	depotCreateCmd.Flags().String("root", "", "initial root key (defaults to the empty collection)")
	depotCreateCmd.Flags().String("description", "", "human-readable description")

	depotRootCmd.Flags().String("message", "", "history message for this update")
}

func serverFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("server")
	return v
}

func tokenFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("token")
	return v
}

func realmFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("realm")
	return v
}
