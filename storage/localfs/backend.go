package localfs

import (
	"flag"
	"fmt"

	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
)

func init() {
	backend.MustRegister(backend.Backend{
		Name:        "localfs",
		Description: "Local filesystem account store (directory, single writer process)",
		Usage:       backend.UsageCLI | backend.UsageDaemon,
		Bind: func(fs *flag.FlagSet) backend.Opener {
			dir := fs.String("localfs-dir", "", "LocalFS store directory (for --backend=localfs)")
			return func() (storage.Store, error) {
				if *dir == "" {
					return nil, fmt.Errorf("missing --localfs-dir")
				}
				return New(*dir)
			}
		},
	})
}
