package memory

import (
	"flag"

	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
)

func init() {
	backend.MustRegister(backend.Backend{
		Name:        "memory",
		Description: "In-process account store (lost on exit)",
		Usage:       backend.UsageCLI | backend.UsageDaemon,
		Bind: func(fs *flag.FlagSet) backend.Opener {
			return func() (storage.Store, error) { return New(), nil }
		},
	})
}
