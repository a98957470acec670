package app

import (
	"strings"

	"github.com/botecohq/boteco/internal/database"
)

// DBConfig converts the application database configuration into the database
// package representation, honouring the configured driver.
func (c DatabaseConfig) DBConfig() database.Config {
	cfg := database.Config{
		Driver: strings.TrimSpace(strings.ToLower(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	switch cfg.Driver {
	case "postgres":
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
		cfg.Name = c.Postgres.Database
	case "mysql":
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
		cfg.Name = c.MySQL.Database
	}

	return cfg
}
