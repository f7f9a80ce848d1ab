package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/keys"
	"xdao.co/tokenreg/mint"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/registry/grpcapi"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
	"xdao.co/tokenreg/storage/storeconfig"
	"xdao.co/tokenreg/txn"
)

// registryAPI is what the registry subcommands need, served either by a
// local store or by a tokenregd daemon.
type registryAPI interface {
	Execute(ctx context.Context, signer keys.Signer, ix txn.Instruction) error
	Manager(ctx context.Context) (record.Manager, error)
	Token(ctx context.Context, token address.Address) (record.Token, error)
}

// localRegistry signs and submits envelopes in-process so local and remote
// runs take the same authentication path.
type localRegistry struct {
	svc *registry.Service
}

func (l localRegistry) Execute(ctx context.Context, signer keys.Signer, ix txn.Instruction) error {
	env, err := txn.Sign(signer, ix)
	if err != nil {
		return err
	}
	_, _, err = l.svc.Submit(ctx, env)
	return err
}

func (l localRegistry) Manager(ctx context.Context) (record.Manager, error) { return l.svc.Manager(ctx) }

func (l localRegistry) Token(ctx context.Context, token address.Address) (record.Token, error) {
	return l.svc.Token(ctx, token)
}

// targetFlags selects where commands run: a daemon (--server) or a local
// backend (--store-config, or --backend plus backend flags).
type targetFlags struct {
	server       string
	storeConfig  string
	backendName  string
	program      string
	tokenProgram string
	timeout      time.Duration
	bindings     backend.Bindings
}

func bindTarget(fs *flag.FlagSet, allowServer bool) *targetFlags {
	t := &targetFlags{}
	if allowServer {
		fs.StringVar(&t.server, "server", "", "tokenregd address (host:port); overrides local backend flags")
		fs.DurationVar(&t.timeout, "timeout", 10*time.Second, "Per-RPC timeout when using --server")
	}
	fs.StringVar(&t.storeConfig, "store-config", "", "Backend config file (JSON, or YAML by extension)")
	fs.StringVar(&t.backendName, "backend", "localfs", "Local storage backend name")
	fs.StringVar(&t.program, "program", "", "Registry program id (base58; default "+registry.DefaultProgramID.String()+")")
	fs.StringVar(&t.tokenProgram, "token-program", "", "Token program id (base58; default "+mint.DefaultProgramID.String()+")")
	t.bindings = backend.RegisterFlags(fs, backend.UsageCLI)
	return t
}

func (t *targetFlags) programID() (address.Address, error) {
	if t.program == "" {
		return registry.DefaultProgramID, nil
	}
	a, err := address.Parse(t.program)
	if err != nil {
		return address.Zero, fmt.Errorf("invalid --program: %w", err)
	}
	return a, nil
}

func (t *targetFlags) mintProgram() (mint.Program, error) {
	if t.tokenProgram == "" {
		return mint.NewProgram(address.Zero), nil
	}
	a, err := address.Parse(t.tokenProgram)
	if err != nil {
		return mint.Program{}, fmt.Errorf("invalid --token-program: %w", err)
	}
	return mint.NewProgram(a), nil
}

func (t *targetFlags) openStore() (storage.Store, error) {
	return storeconfig.Select(t.storeConfig, t.backendName, t.bindings, backend.UsageCLI)
}

// open returns the registry API and a close function.
func (t *targetFlags) open() (registryAPI, func(), error) {
	if t.server != "" {
		c, err := grpcapi.Dial(t.server, grpcapi.DialOptions{Timeout: t.timeout})
		if err != nil {
			return nil, nil, err
		}
		c.Timeout = t.timeout
		return c, func() { _ = c.Close() }, nil
	}
	program, err := t.programID()
	if err != nil {
		return nil, nil, err
	}
	mints, err := t.mintProgram()
	if err != nil {
		return nil, nil, err
	}
	store, err := t.openStore()
	if err != nil {
		return nil, nil, err
	}
	svc, err := registry.New(store, program, mints)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return localRegistry{svc: svc}, func() { _ = store.Close() }, nil
}

// signerFlags selects the signing key.
type signerFlags struct {
	seedHex string
	name    string
	role    string
	keyFile string
	keyDir  string
}

func bindSigner(fs *flag.FlagSet) *signerFlags {
	s := &signerFlags{}
	fs.StringVar(&s.seedHex, "seed-hex", "", "Signer seed as 64 hex chars (prefix dilithium3: for Dilithium3)")
	fs.StringVar(&s.name, "signer", "", "Signer key name in the key store")
	fs.StringVar(&s.role, "signer-role", "", "Optional role under --signer")
	fs.StringVar(&s.keyFile, "key-file", "", "Path to a seed file")
	fs.StringVar(&s.keyDir, "key-dir", "", "Key store directory (default ~/.xdao/tokenreg/keys)")
	return s
}

func (s *signerFlags) load() (keys.Signer, error) {
	ks, err := keys.CreateKeyStore(s.keyDir)
	if err != nil {
		return nil, err
	}
	return ks.LoadSigner(s.seedHex, s.name, s.role, s.keyFile)
}

func parseAddressFlag(flagName, v string) (address.Address, error) {
	if v == "" {
		return address.Zero, fmt.Errorf("missing --%s", flagName)
	}
	a, err := address.Parse(v)
	if err != nil {
		return address.Zero, fmt.Errorf("invalid --%s: %w", flagName, err)
	}
	return a, nil
}
