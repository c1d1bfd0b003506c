package main

import (
	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old-dn> <new-dn>",
	Short: "Rename an entry to a new DN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Rename(args[0], args[1])
	},
}
