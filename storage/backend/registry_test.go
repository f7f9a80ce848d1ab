package backend

import (
	"flag"
	"testing"

	"xdao.co/tokenreg/storage"
)

func registerTestBackend(t *testing.T, name string, usage Usage, gotDir *string) {
	t.Helper()
	err := Register(Backend{
		Name:  name,
		Usage: usage,
		Bind: func(fs *flag.FlagSet) Opener {
			dir := fs.String(name+"-dir", "", "test dir")
			return func() (storage.Store, error) {
				*gotDir = *dir
				return nil, nil
			}
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	if err := Register(Backend{}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if err := Register(Backend{Name: "x-no-bind", Usage: UsageCLI}); err == nil {
		t.Fatalf("expected missing Bind to fail")
	}
	if err := Register(Backend{Name: "x-no-usage", Bind: func(*flag.FlagSet) Opener { return nil }}); err == nil {
		t.Fatalf("expected missing Usage to fail")
	}
}

func TestFlagsBindPerFlagSet(t *testing.T) {
	var got string
	registerTestBackend(t, "test-flags", UsageCLI, &got)

	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	binds := RegisterFlags(fs, UsageCLI)
	if err := fs.Parse([]string{"--test-flags-dir", "/data"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := binds.Open("test-flags"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "/data" {
		t.Fatalf("flag value not delivered: %q", got)
	}

	if err := Register(Backend{Name: "test-flags", Usage: UsageCLI, Bind: func(*flag.FlagSet) Opener { return nil }}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestUsageFiltering(t *testing.T) {
	var got string
	registerTestBackend(t, "test-daemon-only", UsageDaemon, &got)

	for _, n := range Names(UsageCLI) {
		if n == "test-daemon-only" {
			t.Fatalf("daemon-only backend listed for CLI")
		}
	}
	binds := RegisterFlags(flag.NewFlagSet("t", flag.ContinueOnError), UsageCLI)
	if _, err := binds.Open("test-daemon-only"); err == nil {
		t.Fatalf("expected daemon-only backend to be rejected in CLI bindings")
	}
	if _, err := OpenWithConfig("test-daemon-only", UsageCLI, nil); err == nil {
		t.Fatalf("expected usage mismatch")
	}
	if _, err := OpenWithConfig("test-daemon-only", UsageDaemon, map[string]string{"test-daemon-only-dir": "/d"}); err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if got != "/d" {
		t.Fatalf("config value not delivered: %q", got)
	}
}
