package config

import (
	"fmt"
	"time"

	"xdao.co/tokenreg/address"
)

// Daemon is the tokenregd configuration.
type Daemon struct {
	Listen string `env:"TOKENREG_LISTEN" envDefault:"127.0.0.1:7450"`
	// StoreConfig is a backend config file (JSON, or YAML by extension).
	// When empty, Backend selects a backend with its default flags.
	StoreConfig string `env:"TOKENREG_STORE_CONFIG"`
	Backend     string `env:"TOKENREG_BACKEND" envDefault:"memory"`

	Program      string `env:"TOKENREG_PROGRAM_ID"`
	TokenProgram string `env:"TOKENREG_TOKEN_PROGRAM_ID"`

	LogVerbosity   int  `env:"TOKENREG_LOG_VERBOSITY" envDefault:"0"`
	LogDevelopment bool `env:"TOKENREG_LOG_DEVELOPMENT" envDefault:"false"`

	MaxMsgBytes     int           `env:"TOKENREG_MAX_MSG_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"TOKENREG_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadDaemon parses Daemon from the environment.
func LoadDaemon() (Daemon, error) {
	var cfg Daemon
	if err := ParseEnv(&cfg); err != nil {
		return Daemon{}, err
	}
	if cfg.Listen == "" {
		return Daemon{}, fmt.Errorf("TOKENREG_LISTEN must not be empty")
	}
	return cfg, nil
}

// ProgramID returns the configured registry program id, or zero for the default.
func (d Daemon) ProgramID() (address.Address, error) {
	return optionalAddress("TOKENREG_PROGRAM_ID", d.Program)
}

// TokenProgramID returns the configured token program id, or zero for the default.
func (d Daemon) TokenProgramID() (address.Address, error) {
	return optionalAddress("TOKENREG_TOKEN_PROGRAM_ID", d.TokenProgram)
}

func optionalAddress(name, s string) (address.Address, error) {
	if s == "" {
		return address.Zero, nil
	}
	a, err := address.Parse(s)
	if err != nil {
		return address.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}
