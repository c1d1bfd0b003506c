package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var getCmd = &cobra.Command{
	Use:   "get <dn>",
	Short: "Fetch and print an entry by DN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		entry, err := db.Get(args[0])
		if err != nil {
			return err
		}
		printEntry(entry)
		return nil
	},
}

func printEntry(e *tdbdir.Entry) {
	fmt.Printf("dn: %s\n", e.DN)
	for _, el := range e.Elements {
		for _, v := range el.Values {
			fmt.Printf("%s: %s\n", el.Name, v)
		}
	}
}
