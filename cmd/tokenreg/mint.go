package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/mint"
)

func cmdMint(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: tokenreg mint <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: create, set-authority, show")
		return 2
	}
	switch args[0] {
	case "create":
		return cmdMintCreate(args[1:], out, errOut)
	case "set-authority":
		return cmdMintSetAuthority(args[1:], out, errOut)
	case "show":
		return cmdMintShow(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown mint subcommand: %s\n", args[0])
		return 2
	}
}

func cmdMintCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("mint create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var tokenStr, authorityStr, freezeStr string
	var decimals uint
	fs.StringVar(&tokenStr, "token", "", "Token id (base58)")
	fs.StringVar(&authorityStr, "authority", "", "Mint authority (base58); empty creates a mint without one")
	fs.StringVar(&freezeStr, "freeze-authority", "", "Optional freeze authority (base58)")
	fs.UintVar(&decimals, "decimals", 0, "Decimal places")
	target := bindTarget(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	token, err := parseAddressFlag("token", tokenStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if decimals > 255 {
		fmt.Fprintln(errOut, "invalid --decimals: must be at most 255")
		return 2
	}
	m := mint.Mint{Decimals: uint8(decimals)}
	if authorityStr != "" {
		a, err := parseAddressFlag("authority", authorityStr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		m.MintAuthority = &a
	}
	if freezeStr != "" {
		a, err := parseAddressFlag("freeze-authority", freezeStr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		m.FreezeAuthority = &a
	}

	prog, err := target.mintProgram()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	store, err := target.openStore()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer store.Close()

	if err := prog.CreateMint(context.Background(), store, token, m); err != nil {
		fmt.Fprintf(errOut, "create mint: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "OK mint %s\n", token)
	return 0
}

func cmdMintSetAuthority(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("mint set-authority", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var tokenStr, newStr string
	var disable bool
	fs.StringVar(&tokenStr, "token", "", "Token id (base58)")
	fs.StringVar(&newStr, "new-authority", "", "New mint authority (base58)")
	fs.BoolVar(&disable, "disable", false, "Remove the mint authority permanently")
	signer := bindSigner(fs)
	target := bindTarget(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	token, err := parseAddressFlag("token", tokenStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	var newAuthority *address.Address
	switch {
	case disable && newStr != "":
		fmt.Fprintln(errOut, "--disable and --new-authority are mutually exclusive")
		return 2
	case !disable:
		a, err := parseAddressFlag("new-authority", newStr)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		newAuthority = &a
	}

	s, err := signer.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 2
	}
	prog, err := target.mintProgram()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	store, err := target.openStore()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer store.Close()

	if err := prog.SetMintAuthority(context.Background(), store, token, s.Identity(), newAuthority); err != nil {
		fmt.Fprintf(errOut, "set mint authority: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "OK mint %s\n", token)
	return 0
}

func cmdMintShow(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("mint show", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var tokenStr string
	fs.StringVar(&tokenStr, "token", "", "Token id (base58)")
	target := bindTarget(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	token, err := parseAddressFlag("token", tokenStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	prog, err := target.mintProgram()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	store, err := target.openStore()
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 2
	}
	defer store.Close()

	m, err := prog.Get(context.Background(), store, token)
	if err != nil {
		fmt.Fprintf(errOut, "show mint: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "mint_authority: %s\n", optionalString(m.MintAuthority))
	fmt.Fprintf(out, "freeze_authority: %s\n", optionalString(m.FreezeAuthority))
	fmt.Fprintf(out, "supply: %d\n", m.Supply)
	fmt.Fprintf(out, "decimals: %d\n", m.Decimals)
	return 0
}

func optionalString(a *address.Address) string {
	if a == nil {
		return "none"
	}
	return a.String()
}
