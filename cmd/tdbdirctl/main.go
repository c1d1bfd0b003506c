// Command tdbdirctl is a CLI front end exercising the directory
// database backend engine directly: open a store and add, get,
// modify, delete or rename entries from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tdbdirctl",
	Short: "Inspect and edit a tdbdir directory database",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path or tdb:// URL to the database file")
	rootCmd.MarkPersistentFlagRequired("db")
	rootCmd.AddCommand(getCmd, addCmd, deleteCmd, modifyCmd, renameCmd, seqCmd)
}
