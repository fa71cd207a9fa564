// Command kitedb is a thin CLI around the storage engine: it wires a
// config.Config and an engine.Context together into a DB (generalizing
// the teacher's server.DB, which bundled FileMgr+Log+BufferPool) and
// exposes a bench subcommand that drives it directly. It never parses
// SQL; there is no query layer here to drive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kitedb",
		Short: "A teaching-grade relational storage engine",
	}
	root.AddCommand(benchCmd())
	return root
}
