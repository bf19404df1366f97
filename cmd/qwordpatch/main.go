// Package main provides the qwordpatch CLI tool.
package main

import (
	"os"

	"github.com/ZacharyZcR/QWordPatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
