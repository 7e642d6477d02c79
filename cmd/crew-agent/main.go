// Package main is the entry point for the crew-agent CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	rootCmd := cli.NewRootCommand(app.Options{Dir: cwd, LogOutput: stderr}, version)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
