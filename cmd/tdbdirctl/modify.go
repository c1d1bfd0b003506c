package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var modifyCmd = &cobra.Command{
	Use:   "modify <dn> <add|replace|delete>:<attr>:<value>[,<value>...] [more...]",
	Short: "Apply one or more modifications to an entry",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mods := make([]tdbdir.Modification, 0, len(args)-1)
		for _, spec := range args[1:] {
			m, err := parseModSpec(spec)
			if err != nil {
				return err
			}
			mods = append(mods, m)
		}

		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Modify(args[0], mods)
	},
}

// parseModSpec parses "op:attr:value,value,..." into a Modification.
func parseModSpec(spec string) (tdbdir.Modification, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return tdbdir.Modification{}, fmt.Errorf("tdbdirctl: malformed modification %q", spec)
	}

	var op tdbdir.ModOp
	switch strings.ToLower(parts[0]) {
	case "add":
		op = tdbdir.ModAdd
	case "replace":
		op = tdbdir.ModReplace
	case "delete":
		op = tdbdir.ModDelete
	default:
		return tdbdir.Modification{}, fmt.Errorf("tdbdirctl: unknown modification op %q", parts[0])
	}

	var values [][]byte
	if len(parts) == 3 && parts[2] != "" {
		for _, v := range strings.Split(parts[2], ",") {
			values = append(values, []byte(v))
		}
	}

	return tdbdir.Modification{Op: op, Name: parts[1], Values: values}, nil
}
