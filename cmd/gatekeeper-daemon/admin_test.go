// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
	"github.com/bureau-foundation/gatekeeper/lib/ipc"
	"github.com/bureau-foundation/gatekeeper/verify"
)

// startAuthorityStub answers every status query with the given report.
func startAuthorityStub(t *testing.T, ingress *verify.Ingress, report verify.StatusReport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for conversation := range ingress.C() {
			if _, err := conversation.Receive(ctx); err != nil {
				conversation.Close()
				continue
			}
			conversation.Send(report)
			conversation.Close()
		}
	}()
}

func startAdmin(t *testing.T, report verify.StatusReport) string {
	t.Helper()
	ingress := verify.NewIngress()
	t.Cleanup(ingress.Close)
	startAuthorityStub(t, ingress, report)

	socket := filepath.Join(t.TempDir(), "admin.sock")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := newAdminServer(socket, ingress, logger)
	if err != nil {
		t.Fatalf("newAdminServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return socket
}

func exchange(t *testing.T, socket string, request ipc.Request) ipc.Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	var response ipc.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func TestAdminStatus(t *testing.T) {
	socket := startAdmin(t, verify.StatusReport{New: 1, Pending: 2, Approved: 3})

	response := exchange(t, socket, ipc.Request{Action: ipc.ActionStatus})
	if response.Error != "" {
		t.Fatalf("status error: %s", response.Error)
	}
	if response.Status == nil {
		t.Fatal("status response missing status")
	}
	if response.Status.New != 1 || response.Status.Pending != 2 || response.Status.Approved != 3 {
		t.Errorf("status = %+v", response.Status)
	}
	if response.Status.UptimeSeconds < 0 {
		t.Errorf("uptime = %d", response.Status.UptimeSeconds)
	}
}

func TestAdminRecords(t *testing.T) {
	socket := startAdmin(t, verify.StatusReport{
		Approved: 1,
		Records: []verify.RecordSummary{
			{Identity: "u1", DisplayName: "Steve", UserID: "@steve:example.org", State: verify.StateApproved},
		},
	})

	response := exchange(t, socket, ipc.Request{Action: ipc.ActionRecords})
	if response.Error != "" {
		t.Fatalf("records error: %s", response.Error)
	}
	if len(response.Records) != 1 {
		t.Fatalf("records = %+v", response.Records)
	}
	record := response.Records[0]
	if record.Identity != "u1" || record.State != "approved" || record.UserID != "@steve:example.org" {
		t.Errorf("record = %+v", record)
	}
}

func TestAdminUnknownAction(t *testing.T) {
	socket := startAdmin(t, verify.StatusReport{})

	response := exchange(t, socket, ipc.Request{Action: "drop-table"})
	if response.Error == "" {
		t.Fatal("unknown action accepted")
	}
}

func TestAdminReplacesStaleSocket(t *testing.T) {
	ingress := verify.NewIngress()
	t.Cleanup(ingress.Close)
	startAuthorityStub(t, ingress, verify.StatusReport{})

	socket := filepath.Join(t.TempDir(), "admin.sock")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// A leftover socket file from a crashed daemon. The listener's
	// close would unlink a real socket, so plant a plain file instead.
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: socket, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	stale.SetUnlinkOnClose(false)
	stale.Close()

	server, err := newAdminServer(socket, ingress, logger)
	if err != nil {
		t.Fatalf("newAdminServer over stale socket: %v", err)
	}
	server.listener.Close()
}
