package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"xdao.co/tokenreg/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "tokenreg key: local key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tokenreg key init --name <name> [--scheme ed25519|dilithium3] [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  tokenreg key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  tokenreg key list")
	fmt.Fprintln(w, "  tokenreg key export --name <name> [--role <role>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All subcommands accept --key-dir to use a directory other than ~/.xdao/tokenreg/keys.")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name, seedHex, schemeName, keyDir string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&schemeName, "scheme", "ed25519", "Signature scheme: ed25519 or dilithium3")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional 32-byte seed as 64 hex chars (for reproducible demos)")
	fs.StringVar(&keyDir, "key-dir", "", "Key store directory")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	scheme, err := keys.ParseScheme(schemeName)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --scheme: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	identity, rootPath, err := ks.InitializeRootKey(name, scheme, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", identity)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from, role, keyDir string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. manager, minter)")
	fs.StringVar(&keyDir, "key-dir", "", "Key store directory")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	identity, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", identity)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name, role, keyDir string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key)")
	fs.StringVar(&keyDir, "key-dir", "", "Key store directory")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	signer, err := ks.LoadSigner("", name, role, "")
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, signer.Identity())
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var keyDir string
	fs.StringVar(&keyDir, "key-dir", "", "Key store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\n", e.Identifier, e.Scheme, e.Identity)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}
