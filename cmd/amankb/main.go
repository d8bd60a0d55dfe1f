// Package main is the entry point for the amankb CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/amankb/cmd/amankb/cmd"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, kberrors.FormatForCLI(err))
		os.Exit(1)
	}
}
