package main

import (
	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <dn>",
	Short: "Delete an entry by DN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Delete(args[0])
	},
}
