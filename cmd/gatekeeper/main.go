// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper is the operator CLI for the verification daemon. It talks
// CBOR over the daemon's admin Unix socket.
//
//	gatekeeper status            per-state record counts and uptime
//	gatekeeper records           list live verification records
package main

import (
	"fmt"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
	"github.com/bureau-foundation/gatekeeper/lib/ipc"
)

const defaultSocket = "/run/gatekeeper/admin.sock"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "status":
		return statusCommand(args[1:])
	case "records":
		return recordsCommand(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\nRun 'gatekeeper --help' for usage.", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: gatekeeper <command> [flags]

Commands:
  status    per-state record counts and daemon uptime
  records   list live verification records

Flags:
  --socket  admin socket path (default %s)
`, defaultSocket)
}

func statusCommand(args []string) error {
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	socket := flags.String("socket", defaultSocket, "admin socket path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	response, err := request(*socket, ipc.Request{Action: ipc.ActionStatus})
	if err != nil {
		return err
	}
	status := response.Status
	if status == nil {
		return fmt.Errorf("daemon returned no status")
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "new\t%d\n", status.New)
	fmt.Fprintf(writer, "pending\t%d\n", status.Pending)
	fmt.Fprintf(writer, "approved\t%d\n", status.Approved)
	fmt.Fprintf(writer, "uptime\t%s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	return writer.Flush()
}

func recordsCommand(args []string) error {
	flags := pflag.NewFlagSet("records", pflag.ContinueOnError)
	socket := flags.String("socket", defaultSocket, "admin socket path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	response, err := request(*socket, ipc.Request{Action: ipc.ActionRecords})
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "IDENTITY\tNAME\tSTATE\tUSER")
	for _, record := range response.Records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			record.Identity, record.DisplayName, record.State, record.UserID)
	}
	return writer.Flush()
}

// request performs one request/response exchange with the daemon.
func request(socket string, req ipc.Request) (ipc.Response, error) {
	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("connecting to daemon at %s: %w (is gatekeeper-daemon running?)", socket, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		return ipc.Response{}, fmt.Errorf("sending request: %w", err)
	}
	var response ipc.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return ipc.Response{}, fmt.Errorf("reading response: %w", err)
	}
	if response.Error != "" {
		return ipc.Response{}, fmt.Errorf("daemon: %s", response.Error)
	}
	return response, nil
}
