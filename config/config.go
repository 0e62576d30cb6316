// Package config loads the player configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// A Duration is a time.Duration written as a string like "100ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// A Config contains the player configuration.
type Config struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	LogLevel       string   `json:"logLevel"`
	Speed          float64  `json:"speed"`
	ReloadDelay    Duration `json:"reloadDelay"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// Default returns the configuration used when there is no configuration file.
func Default() *Config {
	return &Config{
		Host:           "localhost",
		Port:           9013,
		LogLevel:       "info",
		Speed:          1,
		ReloadDelay:    Duration(100 * time.Millisecond),
		AllowedOrigins: []string{"*"},
	}
}

// Addr returns the address the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Level returns the configured log level.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// Load loads a configuration file. Missing fields keep their default values.
// If name is empty or the file does not exist, the default configuration is
// returned.
func Load(name string) (*Config, error) {
	c := Default()
	if name == "" {
		return c, nil
	}
	data, err := ioutil.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.StandardLogger().WithField("config", name).Info("no config file, using defaults")
			return c, nil
		}
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("invalid config %q: %v", name, err)
	}
	log := logrus.StandardLogger().WithField("config", name)
	def := Default()
	if c.Port <= 0 || c.Port > 65535 {
		log.Warnf("invalid 'port': %d", c.Port)
		c.Port = def.Port
	}
	if _, err := c.Level(); err != nil {
		log.Warnf("invalid 'logLevel': %q", c.LogLevel)
		c.LogLevel = def.LogLevel
	}
	if c.Speed <= 0 {
		log.Warnf("invalid 'speed': %v", c.Speed)
		c.Speed = def.Speed
	}
	if c.ReloadDelay < 0 {
		log.Warnf("negative 'reloadDelay': %v", time.Duration(c.ReloadDelay))
		c.ReloadDelay = def.ReloadDelay
	}
	if len(c.AllowedOrigins) == 0 {
		log.Warn("missing or empty 'allowedOrigins'")
	}
	return c, nil
}
