package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oba-ldap/tdbdir"
)

var addCmd = &cobra.Command{
	Use:   "add <dn>",
	Short: "Add an entry, reading attr:value lines from stdin until EOF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		elements, err := readElements(os.Stdin)
		if err != nil {
			return err
		}

		db, err := tdbdir.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Add(&tdbdir.Entry{DN: args[0], Elements: elements})
	},
}

// readElements parses "attr: value" lines, one per line, grouping
// repeated attribute names into one element each.
func readElements(r *os.File) ([]tdbdir.Element, error) {
	byName := map[string]*tdbdir.Element{}
	var order []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("tdbdirctl: malformed attribute line %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		el, exists := byName[name]
		if !exists {
			el = &tdbdir.Element{Name: name}
			byName[name] = el
			order = append(order, name)
		}
		el.Values = append(el.Values, []byte(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]tdbdir.Element, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
