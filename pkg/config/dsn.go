package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PostgresParts is the discrete form of a postgres connection, used when
// LIBRARY_DB_DSN is not set.
type PostgresParts struct {
	Host     string `envconfig:"LIBRARY_DB_HOST"`
	Port     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	User     string `envconfig:"LIBRARY_DB_USER"`
	Password string `envconfig:"LIBRARY_DB_PASSWORD"`
	Name     string `envconfig:"LIBRARY_DB_NAME"`
	SSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`
}

// DSN renders the parts as a postgres URL. Host, user and database name are
// required.
func (p PostgresParts) DSN() (string, error) {
	var missing []string
	for _, part := range []struct{ env, value string }{
		{EnvDBHost, p.Host},
		{EnvDBUser, p.User},
		{EnvDBName, p.Name},
	} {
		if strings.TrimSpace(part.value) == "" {
			missing = append(missing, part.env)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(p.User),
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   p.Name,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String(), nil
}

// resolve mirrors the sqlite flag onto the db config and fills DSN from the
// parts when it was not given directly.
func (db *DBConfig) resolve(useSQLite bool) error {
	db.UseSQLite = useSQLite
	switch {
	case useSQLite && strings.TrimSpace(db.SQLitePath) == "":
		return fmt.Errorf("%s is required when %s is set", EnvDBSQLitePath, EnvUseSQLite)
	case useSQLite, db.DSN != "":
		return nil
	}
	dsn, err := db.Parts.DSN()
	if err != nil {
		return err
	}
	db.DSN = dsn
	return nil
}
