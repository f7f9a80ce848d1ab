package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/txn"

	_ "xdao.co/tokenreg/storage/localfs"
	_ "xdao.co/tokenreg/storage/memory"
	_ "xdao.co/tokenreg/storage/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "address":
		return cmdAddress(args[1:], out, errOut)
	case "init":
		return cmdInit(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "mint":
		return cmdMint(args[1:], out, errOut)
	case "register":
		return cmdToken(txn.KindRegister, args[1:], out, errOut)
	case "set-manager":
		return cmdSetManager(args[1:], out, errOut)
	case "show":
		return cmdShow(args[1:], out, errOut)
	case "snapshot":
		return cmdSnapshot(args[1:], out, errOut)
	case "update":
		return cmdToken(txn.KindUpdateToken, args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "tokenreg: token metadata registry CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tokenreg key init --name <name> [--scheme ed25519|dilithium3] [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  tokenreg key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  tokenreg key list")
	fmt.Fprintln(w, "  tokenreg key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  tokenreg address manager|token [--token <id>] [--program <id>]")
	fmt.Fprintln(w, "  tokenreg init <signer> <target>")
	fmt.Fprintln(w, "  tokenreg set-manager --new-authority <id> <signer> <target>")
	fmt.Fprintln(w, "  tokenreg register --token <id> --name <n> --symbol <s> --image-uri <u> <signer> <target>")
	fmt.Fprintln(w, "  tokenreg update --token <id> --name <n> --symbol <s> --image-uri <u> <signer> <target>")
	fmt.Fprintln(w, "  tokenreg show manager|token [--token <id>] <target>")
	fmt.Fprintln(w, "  tokenreg mint create --token <id> [--authority <id>] [--decimals <n>] <local target>")
	fmt.Fprintln(w, "  tokenreg mint set-authority --token <id> (--new-authority <id> | --disable) <signer> <local target>")
	fmt.Fprintln(w, "  tokenreg mint show --token <id> <local target>")
	fmt.Fprintln(w, "  tokenreg snapshot export --out <file.tar> [--no-index] <local target>")
	fmt.Fprintln(w, "  tokenreg snapshot import --in <file.tar> [--ignore-unknown] <local target>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signer flags: --seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>")
	fmt.Fprintln(w, "Target flags: --server <host:port> | --store-config <file> | --backend <name> [backend flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - identities and token ids are base58 32-byte keys")
	fmt.Fprintln(w, "  - the key store lives under ~/.xdao/tokenreg/keys (0600 seed files)")
	fmt.Fprintln(w, "  - mint and snapshot commands need a local backend")
}

// reportErr prints err, adding the registry code when there is one, and
// returns the exit status.
func reportErr(errOut io.Writer, what string, err error) int {
	if code := registry.CodeOf(err); code != registry.CodeInternal {
		fmt.Fprintf(errOut, "%s: %s (%d): %v\n", what, code, code.Number(), err)
		return 1
	}
	fmt.Fprintf(errOut, "%s: %v\n", what, err)
	return 1
}

func cmdAddress(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: tokenreg address manager|token [--token <id>] [--program <id>]")
		return 2
	}
	kind := args[0]
	fs := flag.NewFlagSet("address "+kind, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var programStr, tokenStr string
	fs.StringVar(&programStr, "program", "", "Registry program id (base58)")
	fs.StringVar(&tokenStr, "token", "", "Token id (base58), for token addresses")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	program := registry.DefaultProgramID
	if programStr != "" {
		p, err := parseAddressFlag("program", programStr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		program = p
	}

	var (
		addr address.Address
		err  error
	)
	switch kind {
	case "manager":
		addr, err = record.ManagerAddress(program)
	case "token":
		token, perr := parseAddressFlag("token", tokenStr)
		if perr != nil {
			fmt.Fprintln(errOut, perr)
			return 2
		}
		addr, err = record.TokenAddress(program, token)
	default:
		fmt.Fprintf(errOut, "unknown address kind: %s\n", kind)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "derive: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s\n", addr)
	fmt.Fprintf(out, "cid: %s\n", addr.CID())
	return 0
}

func cmdInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	signer := bindSigner(fs)
	target := bindTarget(fs, true)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return execute(target, signer, txn.Instruction{Kind: txn.KindInitializeManager}, out, errOut)
}

func cmdSetManager(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("set-manager", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var newAuthority string
	fs.StringVar(&newAuthority, "new-authority", "", "New manager authority (base58)")
	signer := bindSigner(fs)
	target := bindTarget(fs, true)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	auth, err := parseAddressFlag("new-authority", newAuthority)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	return execute(target, signer, txn.Instruction{Kind: txn.KindUpdateManager, NewAuthority: auth}, out, errOut)
}

func cmdToken(kind txn.Kind, args []string, out io.Writer, errOut io.Writer) int {
	name := "register"
	if kind == txn.KindUpdateToken {
		name = "update"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var tokenStr string
	ix := txn.Instruction{Kind: kind}
	fs.StringVar(&tokenStr, "token", "", "Token id (base58)")
	fs.StringVar(&ix.Name, "name", "", "Token name")
	fs.StringVar(&ix.Symbol, "symbol", "", "Token symbol")
	fs.StringVar(&ix.ImageURI, "image-uri", "", "Token image URI")
	signer := bindSigner(fs)
	target := bindTarget(fs, true)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	token, err := parseAddressFlag("token", tokenStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	ix.Token = token
	return execute(target, signer, ix, out, errOut)
}

func execute(target *targetFlags, sf *signerFlags, ix txn.Instruction, out io.Writer, errOut io.Writer) int {
	signer, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 2
	}
	program, err := target.programID()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	ix.Program = program

	api, closeFn, err := target.open()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer closeFn()

	if err := api.Execute(context.Background(), signer, ix); err != nil {
		return reportErr(errOut, ix.Kind.String(), err)
	}
	_, _ = fmt.Fprintf(out, "OK %s by %s\n", ix.Kind, signer.Identity())
	return 0
}

func cmdShow(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: tokenreg show manager|token [--token <id>] <target>")
		return 2
	}
	kind := args[0]
	fs := flag.NewFlagSet("show "+kind, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var tokenStr string
	if kind == "token" {
		fs.StringVar(&tokenStr, "token", "", "Token id (base58)")
	}
	target := bindTarget(fs, true)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	api, closeFn, err := target.open()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer closeFn()
	ctx := context.Background()

	switch kind {
	case "manager":
		mgr, err := api.Manager(ctx)
		if err != nil {
			return reportErr(errOut, "show manager", err)
		}
		fmt.Fprintf(out, "authority: %s\n", mgr.Authority)
		return 0
	case "token":
		token, err := parseAddressFlag("token", tokenStr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		tok, err := api.Token(ctx, token)
		if err != nil {
			return reportErr(errOut, "show token", err)
		}
		fmt.Fprintf(out, "address: %s\n", tok.Address)
		fmt.Fprintf(out, "name: %s\n", tok.Name)
		fmt.Fprintf(out, "symbol: %s\n", tok.Symbol)
		fmt.Fprintf(out, "image_uri: %s\n", tok.ImageURI)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown show kind: %s\n", kind)
		return 2
	}
}
