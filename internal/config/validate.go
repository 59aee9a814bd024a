package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// Resolution strings are validated where they are parsed, by the aggregator.
func (c *TraderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if c.API.Identifier == "" {
		return errors.New("api.identifier is required")
	}
	if c.API.Password == "" {
		return errors.New("api.password is required")
	}

	if len(c.Strategy.Epics) == 0 {
		return errors.New("strategy.epics must list at least one epic")
	}
	if c.Strategy.RiskPercent <= 0 || c.Strategy.RiskPercent > 100 {
		return fmt.Errorf("strategy.risk_percent must be in (0, 100], got %v", c.Strategy.RiskPercent)
	}
	if c.Strategy.TPPips <= 0 {
		return errors.New("strategy.tp_pips must be > 0")
	}
	if c.Strategy.PipSize <= 0 {
		return errors.New("strategy.pip_size must be > 0")
	}
	if c.Strategy.ContractSize <= 0 {
		return errors.New("strategy.contract_size must be > 0")
	}

	if c.Database.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
