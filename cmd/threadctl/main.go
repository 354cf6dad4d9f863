// Command threadctl is the operator CLI for ThreadLens: it prints the dashboard
// panels from a running server and provisions API keys.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
