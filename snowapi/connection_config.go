package snowapi

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/BurntSushi/toml"

	"github.com/vjain20/gosnowsql/internal/auth"
)

// DefaultTokenValidity is the validity passed to IssueToken when a
// connection file does not set token_validity. With ExpiryMultiplier it
// gives tokens one hour of life.
const DefaultTokenValidity = 120

// ConnectionConfig is one named connection loaded from a connections.toml.
type ConnectionConfig struct {
	Name          string
	Client        Config
	Exec          ExecutionContext
	TokenValidity int
}

type tomlConnection struct {
	Account              string `toml:"account"`
	User                 string `toml:"user"`
	PrivateKeyFile       string `toml:"private_key_file"`
	PrivateKeyPassphrase string `toml:"private_key_passphrase"`
	PublicKey            string `toml:"public_key"`
	PublicKeyFile        string `toml:"public_key_file"`
	Host                 string `toml:"host"`
	BaseURL              string `toml:"base_url"`
	Timeout              string `toml:"timeout"`
	Warehouse            string `toml:"warehouse"`
	Database             string `toml:"database"`
	Schema               string `toml:"schema"`
	Role                 string `toml:"role"`
	Nullable             *bool  `toml:"nullable"`
	StatementTimeout     int    `toml:"statement_timeout"`
	TokenValidity        int    `toml:"token_validity"`
}

// DefaultConnectionsPath returns $SNOWFLAKE_HOME/connections.toml, falling
// back to ~/.snowflake/connections.toml.
func DefaultConnectionsPath() (string, error) {
	if dir := os.Getenv("SNOWFLAKE_HOME"); dir != "" {
		return filepath.Join(dir, "connections.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".snowflake", "connections.toml"), nil
}

// LoadConnectionConfig reads the connection called name from the TOML file
// at path. An empty name selects $SNOWFLAKE_DEFAULT_CONNECTION_NAME, then
// "default". Key files are read here; a public_key_file that does not exist
// is an error.
func LoadConnectionConfig(path, name string) (*ConnectionConfig, error) {
	if name == "" {
		name = os.Getenv("SNOWFLAKE_DEFAULT_CONNECTION_NAME")
	}
	if name == "" {
		name = "default"
	}

	var file map[string]tomlConnection
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	conn, ok := file[name]
	if !ok {
		return nil, &ConfigurationError{Field: "connection", Err: fmt.Errorf("connection %q not found in %s", name, path)}
	}

	cfg := &ConnectionConfig{
		Name: name,
		Client: Config{
			Account:    conn.Account,
			User:       conn.User,
			PublicKey:  conn.PublicKey,
			Passphrase: []byte(conn.PrivateKeyPassphrase),
			Host:       conn.Host,
			BaseURL:    conn.BaseURL,
		},
		Exec: NewExecutionContext().
			WithWarehouse(conn.Warehouse).
			WithDatabase(conn.Database).
			WithSchema(conn.Schema).
			WithRole(conn.Role).
			WithTimeout(conn.StatementTimeout),
		TokenValidity: conn.TokenValidity,
	}
	if conn.Nullable != nil {
		cfg.Exec = cfg.Exec.WithNullable(*conn.Nullable)
	}
	if cfg.TokenValidity == 0 {
		cfg.TokenValidity = DefaultTokenValidity
	}

	if conn.Timeout != "" {
		d, err := time.ParseDuration(conn.Timeout)
		if err != nil {
			return nil, &ConfigurationError{Field: "timeout", Err: err}
		}
		cfg.Client.HTTPTimeout = d
	}

	if conn.PrivateKeyFile != "" {
		key, err := auth.ReadKeyFile(resolve(path, conn.PrivateKeyFile))
		if err != nil {
			return nil, &ConfigurationError{Field: "private key", Err: err}
		}
		cfg.Client.PrivateKey = key
	}
	if conn.PublicKeyFile != "" {
		if conn.PublicKey != "" {
			return nil, &ConfigurationError{Field: "public key", Err: fmt.Errorf("public_key and public_key_file are mutually exclusive")}
		}
		key, err := auth.ReadKeyFile(resolve(path, conn.PublicKeyFile))
		if err != nil {
			return nil, &ConfigurationError{Field: "public key", Err: err}
		}
		cfg.Client.PublicKey = string(key)
	}
	return cfg, nil
}

// resolve makes p relative to the directory of the config file.
func resolve(configPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
