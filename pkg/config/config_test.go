package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port    int           `env:"PORT" envDefault:"8010"`
	Engine  string        `env:"ENGINE" envDefault:"memory"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Brokers []string      `env:"BROKERS" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{})))

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "memory", cfg.Engine)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Brokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BROKERS", "k1:9092,k2:9092")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoad_WithPrefix(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, WithPrefix("SEARCH_"), WithEnvironment(map[string]string{
		"SEARCH_ENGINE": "elasticsearch",
		"ENGINE":        "postgres",
	}))
	require.NoError(t, err)
	assert.Equal(t, "elasticsearch", cfg.Engine)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FS_TEST_ENGINE=postgres\nFS_TEST_PORT=7000\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("FS_TEST_ENGINE")
		_ = os.Unsetenv("FS_TEST_PORT")
	})
	// Variables already in the environment take precedence.
	t.Setenv("FS_TEST_PORT", "7100")

	var cfg testConfig
	require.NoError(t, Load(&cfg, WithEnvFiles(path), WithPrefix("FS_TEST_")))

	assert.Equal(t, "postgres", cfg.Engine)
	assert.Equal(t, 7100, cfg.Port)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, WithEnvFiles(filepath.Join(t.TempDir(), "absent.env")), WithEnvironment(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.Port)
}

func TestLoad_InvalidValue(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, WithEnvironment(map[string]string{"TIMEOUT": "soon"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type requiredConfig struct {
	Token string `env:"TOKEN,required"`
}

func TestLoad_RequiredField(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg, WithEnvironment(map[string]string{}))
	require.Error(t, err)

	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{"TOKEN": "s3cret"})))
	assert.Equal(t, "s3cret", cfg.Token)
}
