package env

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/code-payments/flash-fill/pkg/config"
)

func TestConfigDoesntExist(t *testing.T) {
	const env = "ENV_CONFIG_TEST_VAR"
	os.Setenv(env, "default")

	v, err := NewConfig(env).Get(context.Background())
	assert.Equal(t, []byte("default"), v)
	assert.Nil(t, err)

	os.Unsetenv(env)

	v, err = NewConfig(env).Get(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)
}

func TestConfigReadsLatestValue(t *testing.T) {
	const env = "ENV_CONFIG_TEST_LATEST"
	defer os.Unsetenv(env)

	c := NewDurationConfig(env, time.Second)
	assert.Equal(t, time.Second, c.Get(context.Background()))

	os.Setenv(env, "5s")
	assert.Equal(t, 5*time.Second, c.Get(context.Background()))
}

func TestConfigOverriddenByViper(t *testing.T) {
	const env = "ENV_CONFIG_TEST_OVERRIDE"
	os.Setenv(env, "1")
	defer os.Unsetenv(env)

	c := NewUint64Config(env, 0)
	assert.EqualValues(t, 1, c.Get(context.Background()))

	viper.Set(env, "2")
	defer viper.Set(env, nil)
	assert.EqualValues(t, 2, c.Get(context.Background()))
}
