// Package main is the single-binary entrypoint for tide.
package main

import "github.com/tide-labs/tide/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
