package sqlite

import (
	"flag"
	"fmt"

	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
)

func init() {
	backend.MustRegister(backend.Backend{
		Name:        "sqlite",
		Description: "SQLite account store (single file, multi-process safe)",
		Usage:       backend.UsageCLI | backend.UsageDaemon,
		Bind: func(fs *flag.FlagSet) backend.Opener {
			path := fs.String("sqlite-path", "", "SQLite database path (for --backend=sqlite)")
			return func() (storage.Store, error) {
				if *path == "" {
					return nil, fmt.Errorf("missing --sqlite-path")
				}
				return Open(*path)
			}
		},
	})
}
