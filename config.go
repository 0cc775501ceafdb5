package warpdrive

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Config holds the connection properties decoded from a connection string.
type Config struct {
	Backend      string `mapstructure:"backend"`
	Database     string `mapstructure:"database"`
	AutoCommit   bool   `mapstructure:"autocommit"`
	QueryTimeout int64  `mapstructure:"query_timeout"`
	MaxRows      int64  `mapstructure:"max_rows"`
	KeysetSize   int64  `mapstructure:"keyset_size"`
	UseBookmarks int64  `mapstructure:"use_bookmarks"`

	// Properties holds every key without a dedicated field; they are
	// passed to the backend unchanged.
	Properties map[string]any `mapstructure:",remain"`
}

func defaultConfig() Config {
	return Config{
		Backend:    "sqlite3",
		AutoCommit: true,
	}
}

var connStrRegex = regexp.MustCompile(`([^=;]+)=(\{[^}]*\}|[^;]*)`)

// ParseConnectionString splits a "key=value;key={value}" string into a
// property map with lowercased keys. Braces around a value are stripped,
// and the DSN and DRIVER keys are dropped.
func ParseConnectionString(connStr string) (map[string]string, error) {
	props := make(map[string]string)
	trimmed := strings.TrimSpace(connStr)
	if trimmed == "" {
		return props, nil
	}
	matches := connStrRegex.FindAllStringSubmatch(trimmed, -1)
	if len(matches) == 0 {
		return nil, getError(errParseConnStr, fmt.Errorf("no key=value pairs in %q", connStr))
	}
	for _, m := range matches {
		key := strings.ToLower(strings.TrimSpace(m[1]))
		if key == "dsn" || key == "driver" {
			continue
		}
		value := strings.TrimSpace(m[2])
		if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
			value = value[1 : len(value)-1]
		}
		props[key] = value
	}
	return props, nil
}

// ParseConfig decodes a connection string into a Config.
func ParseConfig(connStr string) (Config, error) {
	props, err := ParseConnectionString(connStr)
	if err != nil {
		return Config{}, err
	}
	return decodeConfig(props)
}

func decodeConfig(props map[string]string) (Config, error) {
	cfg := defaultConfig()
	input := make(map[string]any, len(props))
	for k, v := range props {
		input[k] = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, getError(errDriver, err)
	}
	if err := dec.Decode(input); err != nil {
		return Config{}, getError(errParseConnStr, err)
	}
	return cfg, nil
}

func (c Config) queryTimeout() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// backendProperties renders the extra properties as strings.
func (c Config) backendProperties() map[string]string {
	out := make(map[string]string, len(c.Properties))
	for k, v := range c.Properties {
		out[k] = fmt.Sprint(v)
	}
	return out
}
