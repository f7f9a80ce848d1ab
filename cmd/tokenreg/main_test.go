package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/keys"
)

type actor struct {
	seedHex  string
	identity address.Address
}

func newActor(t *testing.T, b byte) actor {
	t.Helper()
	seed := bytes.Repeat([]byte{b}, 32)
	s, err := keys.NewEd25519Signer(seed)
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	return actor{seedHex: hex.EncodeToString(seed), identity: s.Identity()}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("%v: exit %d: %s", args, code, errOut)
	}
	return out
}

func TestUsage(t *testing.T) {
	code, _, errOut := runCLI(t)
	if code != 2 || !strings.Contains(errOut, "Usage:") {
		t.Fatalf("expected usage on stderr, got %d %q", code, errOut)
	}
	code, _, _ = runCLI(t, "nope")
	if code != 2 {
		t.Fatalf("expected exit 2 for unknown command, got %d", code)
	}
}

func TestAddressIsStable(t *testing.T) {
	a := mustRun(t, "address", "manager")
	b := mustRun(t, "address", "manager")
	if a != b || !strings.Contains(a, "cid: ") {
		t.Fatalf("unexpected address output %q vs %q", a, b)
	}
	token := newActor(t, 9)
	x := mustRun(t, "address", "token", "--token", token.identity.String())
	if x == a {
		t.Fatalf("token address collides with manager address")
	}
}

func TestLocalEndToEnd(t *testing.T) {
	dir := t.TempDir()
	target := []string{"--backend", "localfs", "--localfs-dir", dir}
	with := func(args ...string) []string { return append(args, target...) }

	admin := newActor(t, 1)
	minter := newActor(t, 2)
	outsider := newActor(t, 3)
	token := newActor(t, 4).identity.String()

	mustRun(t, with("mint", "create", "--token", token, "--authority", minter.identity.String(), "--decimals", "6")...)
	out := mustRun(t, with("mint", "show", "--token", token)...)
	if !strings.Contains(out, "mint_authority: "+minter.identity.String()) {
		t.Fatalf("unexpected mint: %q", out)
	}

	code, _, errOut := runCLI(t, with("register", "--token", token, "--name", "Coin", "--symbol", "CN", "--image-uri", "uri1", "--seed-hex", minter.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "ManagerNotInitialized") {
		t.Fatalf("expected ManagerNotInitialized, got %d %q", code, errOut)
	}

	mustRun(t, with("init", "--seed-hex", admin.seedHex)...)
	code, _, errOut = runCLI(t, with("init", "--seed-hex", outsider.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "AlreadyExists") {
		t.Fatalf("expected AlreadyExists, got %d %q", code, errOut)
	}
	out = mustRun(t, with("show", "manager")...)
	if !strings.Contains(out, "authority: "+admin.identity.String()) {
		t.Fatalf("unexpected manager: %q", out)
	}

	code, _, errOut = runCLI(t, with("register", "--token", token, "--name", "Coin", "--symbol", "CN", "--image-uri", "uri1", "--seed-hex", outsider.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "InvalidRegisterRights (6000)") {
		t.Fatalf("expected InvalidRegisterRights, got %d %q", code, errOut)
	}

	mustRun(t, with("register", "--token", token, "--name", "Coin", "--symbol", "CN", "--image-uri", "uri1", "--seed-hex", minter.seedHex)...)
	code, _, errOut = runCLI(t, with("register", "--token", token, "--name", "Coin", "--symbol", "CN", "--image-uri", "uri1", "--seed-hex", admin.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "AlreadyRegistered") {
		t.Fatalf("expected AlreadyRegistered, got %d %q", code, errOut)
	}

	code, _, errOut = runCLI(t, with("update", "--token", token, "--name", "Coin2", "--symbol", "CN2", "--image-uri", "uri2", "--seed-hex", outsider.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "InvalidEditRights (6001)") {
		t.Fatalf("expected InvalidEditRights, got %d %q", code, errOut)
	}
	mustRun(t, with("update", "--token", token, "--name", "Coin2", "--symbol", "CN2", "--image-uri", "uri2", "--seed-hex", admin.seedHex)...)

	out = mustRun(t, with("show", "token", "--token", token)...)
	for _, want := range []string{"address: " + token, "name: Coin2", "symbol: CN2", "image_uri: uri2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show token missing %q in %q", want, out)
		}
	}

	// Once the mint authority is disabled only the manager can edit.
	mustRun(t, with("mint", "set-authority", "--token", token, "--disable", "--seed-hex", minter.seedHex)...)
	code, _, errOut = runCLI(t, with("update", "--token", token, "--name", "Coin3", "--symbol", "CN3", "--image-uri", "uri3", "--seed-hex", minter.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "MintingAuthorityUnknown") {
		t.Fatalf("expected MintingAuthorityUnknown, got %d %q", code, errOut)
	}

	mustRun(t, with("set-manager", "--new-authority", outsider.identity.String(), "--seed-hex", admin.seedHex)...)
	code, _, errOut = runCLI(t, with("set-manager", "--new-authority", admin.identity.String(), "--seed-hex", admin.seedHex)...)
	if code != 1 || !strings.Contains(errOut, "Unauthorized") {
		t.Fatalf("expected Unauthorized, got %d %q", code, errOut)
	}

	archive := filepath.Join(t.TempDir(), "registry.tar")
	mustRun(t, with("snapshot", "export", "--out", archive)...)
	if fi, err := os.Stat(archive); err != nil || fi.Size() == 0 {
		t.Fatalf("snapshot not written: %v", err)
	}

	restored := t.TempDir()
	out = mustRun(t, "snapshot", "import", "--in", archive, "--backend", "localfs", "--localfs-dir", restored)
	if !strings.Contains(out, "Imported 3 accounts") {
		t.Fatalf("unexpected import output %q", out)
	}
	out = mustRun(t, "show", "token", "--token", token, "--backend", "localfs", "--localfs-dir", restored)
	if !strings.Contains(out, "name: Coin2") {
		t.Fatalf("restored token mismatch: %q", out)
	}
	// Importing the same archive again is a no-op.
	out = mustRun(t, "snapshot", "import", "--in", archive, "--backend", "localfs", "--localfs-dir", restored)
	if !strings.Contains(out, "Imported 0 accounts") {
		t.Fatalf("unexpected re-import output %q", out)
	}
}

func TestKeyCommands(t *testing.T) {
	dir := t.TempDir()
	seed := strings.Repeat("ab", 32)
	out := mustRun(t, "key", "init", "--name", "alice", "--seed-hex", seed, "--key-dir", dir)
	if !strings.Contains(out, "Created root key: ") {
		t.Fatalf("unexpected output %q", out)
	}
	mustRun(t, "key", "derive", "--from", "alice", "--role", "minter", "--key-dir", dir)

	exported := strings.TrimSpace(mustRun(t, "key", "export", "--name", "alice", "--key-dir", dir))
	want := newActor(t, 0xab).identity.String()
	if exported != want {
		t.Fatalf("export = %q, want %q", exported, want)
	}

	out = mustRun(t, "key", "list", "--key-dir", dir)
	if !strings.Contains(out, "alice") || !strings.Contains(out, "- minter") || !strings.Contains(out, want) {
		t.Fatalf("unexpected list %q", out)
	}

	code, _, _ := runCLI(t, "key", "init", "--name", "alice", "--seed-hex", seed, "--key-dir", dir)
	if code == 0 {
		t.Fatalf("expected re-init without --force to fail")
	}
	mustRun(t, "key", "init", "--name", "pq", "--scheme", "dilithium3", "--key-dir", dir)
}
