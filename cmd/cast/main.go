// Command cast reconciles a set of markdown vaults: stable document
// identity, pairwise diff/merge, and index/sync-state maintenance.
//
// Usage:
//
//	cast index [--vault dir] [--rebuild] [--auto-fix]
//	cast sync [--vault dir] --peer dir... [--overpower]
//	cast reset [--vault dir] [--keep-config]
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, usage())
		return 1
	}

	var err error

	switch args[0] {
	case "index":
		err = runIndex(args[1:], out)
	case "sync":
		err = runSync(args[1:], out)
	case "reset":
		err = runReset(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage())
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n%s\n", args[0], usage())
		return 1
	}

	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return exitCodeFor(err)
	}

	return 0
}

func usage() string {
	return `cast index [--vault dir] [--rebuild] [--auto-fix]
cast sync [--vault dir] --peer dir... [--overpower]
cast reset [--vault dir] [--keep-config]`
}
