package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from the process environment using its `env` and
// `envDefault` struct tags. cfg must be a pointer to a struct.
func Load(cfg any) error {
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
