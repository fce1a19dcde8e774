// Command portalctl is a terminal client for the campus portal REST API.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	root, a := newRootCmd()
	if err := execute(context.Background(), root, a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
