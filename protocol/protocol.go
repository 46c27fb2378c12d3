// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol.go
// Summary: Line-oriented control protocol shared by the control server and waymuxctl.
// Usage: The server parses request lines with ParseRequest and answers with Response.Encode;
//   clients write Request.Line and decode the reply with ReadResponse.
// Notes: One request and one response per connection. The server half-closes after replying.

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Verbs understood by the control server.
const (
	VerbListTabs     = "list-tabs"
	VerbFocusTab     = "focus-tab"
	VerbCloseTab     = "close-tab"
	VerbNewTab       = "new-tab"
	VerbShowLauncher = "show-launcher"
)

// ForceFlag selects the immediate-kill path of close-tab.
const ForceFlag = "--force"

// CommandSeparator precedes the argv of new-tab.
const CommandSeparator = "--"

// Error messages carried by ERROR responses.
const (
	MsgMissingIndex    = "Missing tab index"
	MsgInvalidIndex    = "Invalid tab index"
	MsgIndexOutOfRange = "Tab index out of range"
	MsgMissingCommand  = "Missing command"
	MsgEmptyCommand    = "Empty command"
	MsgFailedToFork    = "Failed to fork"
	MsgUnknownCommand  = "Unknown command"
	MsgTooManyClients  = "Too many clients"
)

var (
	ErrEmptyResponse     = errors.New("protocol: empty response")
	ErrMalformedResponse = errors.New("protocol: malformed response")
)

// Request is one parsed command line. Raw keeps the text after the verb
// as received.
type Request struct {
	Verb string
	Args []string
	Raw  string
}

// ParseRequest splits a command line (without its newline) into a verb and
// whitespace separated arguments.
func ParseRequest(line string) Request {
	line = strings.TrimLeft(strings.TrimSuffix(line, "\r"), " \t")
	verb, raw, _ := strings.Cut(line, " ")
	return Request{Verb: verb, Args: strings.Fields(raw), Raw: raw}
}

// Command extracts the argv of a new-tab request. The returned message is
// empty on success.
func (r Request) Command() ([]string, string) {
	rest, ok := strings.CutPrefix(r.Raw, CommandSeparator)
	if !ok || (rest != "" && rest[0] != ' ') {
		return nil, MsgMissingCommand
	}
	if rest == "" {
		return nil, MsgMissingCommand
	}
	argv := strings.Fields(rest)
	if len(argv) == 0 {
		return nil, MsgEmptyCommand
	}
	return argv, ""
}

// Line renders the request without its terminating newline.
func (r Request) Line() string {
	if len(r.Args) == 0 {
		return r.Verb
	}
	return r.Verb + " " + strings.Join(r.Args, " ")
}

// NewTabRequest builds a new-tab request for argv.
func NewTabRequest(argv []string) Request {
	args := append([]string{CommandSeparator}, argv...)
	return Request{Verb: VerbNewTab, Args: args}
}

// ParseIndex validates a tab index argument. The returned message is empty
// on success.
func ParseIndex(args []string) (int, string) {
	if len(args) == 0 || args[0] == "" {
		return 0, MsgMissingIndex
	}
	if len(args) > 1 {
		return 0, MsgInvalidIndex
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, MsgInvalidIndex
	}
	return n, ""
}

// Response is one reply. Count is only sent when HasCount is set; Lines
// follow the status line.
type Response struct {
	OK       bool
	HasCount bool
	Count    int
	Lines    []string
	Message  string
}

// Ack is a plain "OK".
func Ack() Response { return Response{OK: true} }

// List is "OK <n>" followed by n lines.
func List(lines []string) Response {
	return Response{OK: true, HasCount: true, Count: len(lines), Lines: lines}
}

// Error is "ERROR <msg>".
func Error(msg string) Response { return Response{Message: msg} }

// TabLine formats one list-tabs entry.
func TabLine(index int, appID, title string) string {
	if appID == "" {
		appID = "(unknown)"
	}
	if title == "" {
		title = "(unnamed)"
	}
	return fmt.Sprintf("%d: [%s] %s", index, appID, title)
}

// Encode renders the response in wire form.
func (r Response) Encode() []byte {
	var buf bytes.Buffer
	switch {
	case !r.OK:
		buf.WriteString("ERROR " + r.Message + "\n")
		return buf.Bytes()
	case r.HasCount:
		fmt.Fprintf(&buf, "OK %d\n", r.Count)
	default:
		buf.WriteString("OK\n")
	}
	for _, line := range r.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Body is the response without its status line, as printed by waymuxctl.
func (r Response) Body() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return strings.Join(r.Lines, "\n") + "\n"
}

// ReadResponse reads a response until EOF.
func ReadResponse(rd io.Reader) (Response, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read status: %w", err)
		}
		return Response{}, ErrEmptyResponse
	}
	resp, err := parseStatus(scanner.Text())
	if err != nil {
		return Response{}, err
	}
	for scanner.Scan() {
		resp.Lines = append(resp.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	if resp.HasCount && resp.Count != len(resp.Lines) {
		return resp, fmt.Errorf("%w: declared %d lines, got %d", ErrMalformedResponse, resp.Count, len(resp.Lines))
	}
	return resp, nil
}

func parseStatus(line string) (Response, error) {
	switch {
	case line == "OK":
		return Response{OK: true}, nil
	case strings.HasPrefix(line, "OK "):
		n, err := strconv.Atoi(strings.TrimPrefix(line, "OK "))
		if err != nil || n < 0 {
			return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
		}
		return Response{OK: true, HasCount: true, Count: n}, nil
	case line == "ERROR":
		return Response{}, nil
	case strings.HasPrefix(line, "ERROR "):
		return Response{Message: strings.TrimPrefix(line, "ERROR ")}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
}
