package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, text string) string {
	name := filepath.Join(t.TempDir(), "lpyp.json")
	require.NoError(t, os.WriteFile(name, []byte(text), 0o666))
	return name
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, `{"port": 8080, "speed": 0.5, "reloadDelay": "1s", "allowedOrigins": ["http://localhost:3000"]}`))
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Host:           "localhost",
		Port:           8080,
		LogLevel:       "info",
		Speed:          0.5,
		ReloadDelay:    Duration(time.Second),
		AllowedOrigins: []string{"http://localhost:3000"},
	}, c)
	assert.Equal(t, "localhost:8080", c.Addr())
}

func TestLoadDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	c, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadInvalid(t *testing.T) {
	type testcase struct {
		name string
		text string
	}
	cases := []testcase{
		{"unknown field", `{"colour": "red"}`},
		{"bad duration", `{"reloadDelay": "soon"}`},
		{"syntax", `{"port": }`},
	}
	for _, c := range cases {
		if _, err := Load(writeConfig(t, c.text)); err == nil {
			t.Errorf("%s: no error", c.name)
		}
	}
}

func TestLoadFixesValues(t *testing.T) {
	c, err := Load(writeConfig(t, `{"port": -1, "logLevel": "loud", "speed": 0}`))
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Port, c.Port)
	assert.Equal(t, def.LogLevel, c.LogLevel)
	assert.Equal(t, def.Speed, c.Speed)
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reloadDelay":"100ms"`)
}
