package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depotCmd = &cobra.Command{
	Use:   "depot",
	Short: "Manage depots (named, version-pointer namespaces) in a realm",
}

var depotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List depots in the target realm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newRESTClient(serverFlag(cmd), tokenFlag(cmd))
		status, body, err := c.call("GET", "/realm/"+realmFlag(cmd)+"/depots", nil)
		if err != nil {
			return err
		}
		if err := c.checkStatus(status, body); err != nil {
			return err
		}
		depots, _ := body["depots"].([]any)
		for _, d := range depots {
			fmt.Printf("%v\n", d)
		}
		return nil
	},
}

var depotCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new depot in the target realm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")
		description, _ := cmd.Flags().GetString("description")

		c := newRESTClient(serverFlag(cmd), tokenFlag(cmd))
		status, body, err := c.call("POST", "/realm/"+realmFlag(cmd)+"/depots", map[string]any{
			"name":        args[0],
			"root":        root,
			"description": description,
		})
		if err != nil {
			return err
		}
		if err := c.checkStatus(status, body); err != nil {
			return err
		}
		fmt.Printf("created depot %v (id=%v)\n", body["name"], body["id"])
		return nil
	},
}

var depotRootCmd = &cobra.Command{
	Use:   "set-root <depot-id> <root-key>",
	Short: "Advance a depot's root pointer by one version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		c := newRESTClient(serverFlag(cmd), tokenFlag(cmd))
		status, body, err := c.call("PUT", "/realm/"+realmFlag(cmd)+"/depots/"+args[0], map[string]any{
			"root":    args[1],
			"message": message,
		})
		if err != nil {
			return err
		}
		if err := c.checkStatus(status, body); err != nil {
			return err
		}
		fmt.Printf("depot %v now at version %v, root %v\n", body["id"], body["version"], body["root"])
		return nil
	},
}

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Issue scoped access tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a ticket scoped to one or more keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetStringSlice("scope")
		writable, _ := cmd.Flags().GetBool("writable")
		quota, _ := cmd.Flags().GetInt64("quota")

		reqBody := map[string]any{"scope": scope}
		if writable {
			reqBody["commit"] = map[string]any{"quota": quota}
		}

		c := newRESTClient(serverFlag(cmd), tokenFlag(cmd))
		status, body, err := c.call("POST", "/auth/ticket", reqBody)
		if err != nil {
			return err
		}
		if err := c.checkStatus(status, body); err != nil {
			return err
		}
		fmt.Printf("ticket %v issued, endpoint %v, expires %v\n", body["id"], body["endpoint"], body["expiresAt"])
		return nil
	},
}
