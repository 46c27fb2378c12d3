// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/waymuxctl/commands.go
// Summary: One cobra subcommand per control verb plus the instance listing.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/framegrace/waymux/client"
	"github.com/framegrace/waymux/config"
	"github.com/framegrace/waymux/internal/instances"
	"github.com/framegrace/waymux/protocol"
)

// send resolves the socket, performs one exchange and prints the body.
func send(cmd *cobra.Command, flags *globalFlags, req protocol.Request) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	path, err := client.Discover(ctx, flags.socket, client.NewSocketHealthChecker(time.Second))
	if err != nil {
		return err
	}
	c := client.New(path)
	c.SetTimeout(flags.timeout)
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	writeFitted(cmd.OutOrStdout(), resp.Lines)
	if !resp.OK {
		return &responseError{msg: resp.Message}
	}
	return nil
}

// writeFitted prints lines, truncated to the terminal width when out is one.
func writeFitted(out io.Writer, lines []string) {
	width := terminalWidth(out)
	for _, line := range lines {
		if width > 0 && runewidth.StringWidth(line) > width {
			line = runewidth.Truncate(line, width, "…")
		}
		fmt.Fprintln(out, line)
	}
}

func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func validIndex(arg string) error {
	if n, err := strconv.Atoi(arg); err != nil || n < 0 {
		return fmt.Errorf("invalid tab index %q", arg)
	}
	return nil
}

func newListTabsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   protocol.VerbListTabs,
		Short: "List tabs as INDEX: [APP] TITLE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd, flags, protocol.Request{Verb: protocol.VerbListTabs})
		},
	}
}

func newFocusTabCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   protocol.VerbFocusTab + " INDEX",
		Short: "Activate the tab at INDEX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validIndex(args[0]); err != nil {
				return err
			}
			return send(cmd, flags, protocol.Request{Verb: protocol.VerbFocusTab, Args: args})
		},
	}
}

func newCloseTabCmd(flags *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   protocol.VerbCloseTab + " INDEX",
		Short: "Close the tab at INDEX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validIndex(args[0]); err != nil {
				return err
			}
			req := protocol.Request{Verb: protocol.VerbCloseTab, Args: args}
			if force {
				req.Args = []string{protocol.ForceFlag, args[0]}
			}
			return send(cmd, flags, req)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Kill the program instead of asking it to close")
	return cmd
}

func newNewTabCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   protocol.VerbNewTab + " -- COMMAND [ARGS...]",
		Short: "Start COMMAND in a new tab",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 0 {
				return fmt.Errorf("the command must follow --")
			}
			for _, a := range args {
				if strings.ContainsAny(a, " \t\n") {
					return fmt.Errorf("argument %q contains whitespace, which the control protocol cannot carry", a)
				}
			}
			return send(cmd, flags, protocol.NewTabRequest(args))
		},
	}
}

func newShowLauncherCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   protocol.VerbShowLauncher,
		Short: "Open the application launcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd, flags, protocol.Request{Verb: protocol.VerbShowLauncher})
		},
	}
}

func newInstancesCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List running waymux instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := dbPath
			if path == "" {
				var err error
				if path, err = config.InstanceDBPath(); err != nil {
					return err
				}
			}
			store, err := instances.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			list, err := store.List()
			if err != nil {
				return err
			}
			writeFitted(cmd.OutOrStdout(), formatInstances(list))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Instance database (default: $XDG_RUNTIME_DIR/waymux/instances.db)")
	return cmd
}

func formatInstances(list []instances.Instance) []string {
	if len(list) == 0 {
		return nil
	}
	nameW, profW := len("NAME"), len("PROFILE")
	for _, inst := range list {
		nameW = max(nameW, runewidth.StringWidth(inst.Name))
		profW = max(profW, runewidth.StringWidth(inst.Profile))
	}
	lines := []string{fmt.Sprintf("%s  %-7s  %s  %s",
		runewidth.FillRight("NAME", nameW), "PID", runewidth.FillRight("PROFILE", profW), "SOCKET")}
	for _, inst := range list {
		profile := inst.Profile
		if profile == "" {
			profile = "-"
		}
		lines = append(lines, fmt.Sprintf("%s  %-7d  %s  %s",
			runewidth.FillRight(inst.Name, nameW), inst.PID, runewidth.FillRight(profile, profW), inst.Socket))
	}
	return lines
}
