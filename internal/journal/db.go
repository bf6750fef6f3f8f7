package journal

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	_defaultHost    = "localhost"
	_defaultPort    = 5432
	_defaultSSLMode = "disable"
)

// Config locates the journal database.
type Config struct {
	Enabled    bool              `json:"enabled"`
	ConnString string            `json:"connString"`
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	Custody    string            `json:"custody"`
}

// DSN renders the postgres connection string. An explicit ConnString wins.
func (c Config) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}

	host, port, sslMode := c.Host, c.Port, c.SSLMode
	if host == "" {
		host = _defaultHost
	}
	if port == 0 {
		port = _defaultPort
	}
	if sslMode == "" {
		sslMode = _defaultSSLMode
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for k, v := range c.Params {
		if k != "" {
			query.Set(k, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func openPostgres(c Config, config *gorm.Config) (*gorm.DB, error) {
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	}
	return gorm.Open(postgres.Open(c.DSN()), config)
}
