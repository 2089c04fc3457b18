// Package main is the entry point for the booth CLI.
package main

import "github.com/snapbooth/booth-cli/internal/cli"

func main() {
	cli.Execute()
}
