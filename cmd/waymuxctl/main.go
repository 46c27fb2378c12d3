// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/waymuxctl/main.go
// Summary: Sends one control command to a running waymux instance.
// Usage: waymuxctl [--socket path] list-tabs | focus-tab N | close-tab [--force] N | new-tab -- CMD... | show-launcher | instances

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/framegrace/waymux/client"
)

var version = "dev"

// responseError is an ERROR reply from the server.
type responseError struct {
	msg string
}

func (e *responseError) Error() string { return e.msg }

type globalFlags struct {
	socket  string
	timeout time.Duration
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs one invocation and returns the process exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		red := color.New(color.FgRed)
		var re *responseError
		if errors.As(err, &re) {
			red.Fprintf(stderr, "ERROR %s\n", re.msg)
		} else {
			red.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "waymuxctl",
		Short: "Control a running waymux instance",
		Long: `Send one command to a waymux control socket and print the reply.

The socket is taken from --socket, then WAYMUX_SOCKET, then WAYMUX_PID,
and finally the first live socket in $XDG_RUNTIME_DIR/waymux.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.socket, "socket", "", "Control socket path")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", client.DefaultTimeout, "Time allowed for the whole exchange")

	root.AddCommand(
		newListTabsCmd(flags),
		newFocusTabCmd(flags),
		newCloseTabCmd(flags),
		newNewTabCmd(flags),
		newShowLauncherCmd(flags),
		newInstancesCmd(),
	)
	return root
}
