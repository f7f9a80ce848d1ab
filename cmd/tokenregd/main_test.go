package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"xdao.co/tokenreg/keys"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/registry/grpcapi"
	"xdao.co/tokenreg/txn"
)

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-list-backends"}, &out, &errOut, nil); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	for _, name := range []string{"localfs", "memory", "sqlite"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("missing backend %q in %q", name, out.String())
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	t.Setenv("TOKENREG_OTEL_ENDPOINT", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan int, 1)
	var out, errOut bytes.Buffer
	go func() {
		done <- run(ctx, []string{"-listen", "127.0.0.1:0", "-backend", "memory"}, &out, &errOut, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case code := <-done:
		t.Fatalf("daemon exited early with %d: %s", code, errOut.String())
	case <-time.After(10 * time.Second):
		t.Fatalf("daemon did not start")
	}

	client, err := grpcapi.Dial(addr, grpcapi.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	signer, err := keys.NewEd25519Signer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatal(err)
	}
	ix := txn.Instruction{Kind: txn.KindInitializeManager, Program: registry.DefaultProgramID}
	if err := client.Execute(ctx, signer, ix); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	mgr, err := client.Manager(ctx)
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if mgr.Authority != signer.Identity() {
		t.Fatalf("authority %s want %s", mgr.Authority, signer.Identity())
	}

	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("exit %d: %s", code, errOut.String())
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("daemon did not stop")
	}
}
