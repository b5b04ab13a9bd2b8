package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newBillingCommand and newSetCustomerIDCommand cover the CLI surface
// named in §6; the Stripe-style billing check itself is an out-of-scope
// external collaborator (§1) — these commands only print what the
// operator would need to wire up, not a working billing integration.
func newBillingCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "billing",
		Short: "Show billing linkage status (opaque; billing itself is out of scope)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("billing: no customer id configured; run 'cyrus set-customer-id <id>'")
			return nil
		},
	}
}

func newSetCustomerIDCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-customer-id <id>",
		Short: "Echo a billing customer id (the id is not stored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("customer id received (not stored): %s\n", args[0])
			return nil
		},
	}
}
