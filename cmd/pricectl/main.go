// pricectl is the operator tool for the price store: it inspects, repairs and
// loads the history files and runs one-off conversions without the HTTP server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
