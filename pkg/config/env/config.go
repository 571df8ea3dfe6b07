package env

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/code-payments/flash-fill/pkg/config"
	"github.com/code-payments/flash-fill/pkg/config/wrapper"
)

type conf struct {
	key string
}

// NewConfig returns a config bound to the environment variable key. Values
// are resolved through viper on every Get, so a command line flag bound to
// the same key takes precedence over the environment.
func NewConfig(key string) config.Config {
	key = strings.ToUpper(key)
	_ = viper.BindEnv(key)

	return &conf{
		key: key,
	}
}

// Get implements Config.Get
func (c *conf) Get(ctx context.Context) (interface{}, error) {
	val := viper.GetString(c.key)
	if len(val) == 0 {
		return nil, config.ErrNoValue
	}

	return []byte(val), nil
}

// Shutdown implements Config.Shutdown
func (c *conf) Shutdown() {
}

// NewUint64Config creates a env-based uint64 config
func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

// NewBoolConfig creates a env-based bool config
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

// NewDurationConfig creates a env-based duration config
func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}
