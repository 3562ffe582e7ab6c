package main

import (
	"fmt"
	"os"

	"econova/cli/cmd"
	"econova/pkg/version"
)

func main() {
	version.ComponentName = "novactl"
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
