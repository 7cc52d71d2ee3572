package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ─── clients ────────────────────────────────────────────────────────────────

func newClientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List and manage clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientsList(cmd, a)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientsAdd(cmd, a, args[0])
		},
	}
	addCmd.Flags().String("phone", "", "Phone number")
	addCmd.Flags().String("notes", "", "Free-form notes")

	removeCmd := &cobra.Command{
		Use:   "remove CLIENT",
		Short: "Delete a client without operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientsRemove(cmd, a, args[0])
		},
	}

	cmd.AddCommand(addCmd, removeCmd)
	return cmd
}

func runClientsList(cmd *cobra.Command, a *app) error {
	l, err := a.open()
	if err != nil {
		return err
	}
	clients, err := l.ListClients(cmd.Context())
	if err != nil {
		return err
	}
	balances, err := l.BalanceByClient(cmd.Context())
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No clients registered.")
		return nil
	}

	w := table(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tBALANCE")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Phone, money(balances[c.ID]))
	}
	return w.Flush()
}

func runClientsAdd(cmd *cobra.Command, a *app, name string) error {
	phone, _ := cmd.Flags().GetString("phone")
	notes, _ := cmd.Flags().GetString("notes")

	l, err := a.open()
	if err != nil {
		return err
	}
	c, err := l.AddClient(cmd.Context(), name, phone, notes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Client %q added (%s)\n", c.Name, c.ID)
	return nil
}

func runClientsRemove(cmd *cobra.Command, a *app, ref string) error {
	l, err := a.open()
	if err != nil {
		return err
	}
	c, err := resolveClient(cmd, l, ref)
	if err != nil {
		return err
	}
	if err := l.RemoveClient(cmd.Context(), c.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Client %q removed\n", c.Name)
	return nil
}
