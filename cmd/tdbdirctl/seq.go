package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var seqCmd = &cobra.Command{
	Use:   "seq",
	Short: "Print the store's current change sequence number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.HighestSequence()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}
