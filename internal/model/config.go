package model

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const (
	OutputJSON = "json"
	OutputText = "text"
)

// Config is the weaver.yaml configuration.
type Config struct {
	Verbose bool `yaml:"verbose"`
	// Passwords are additional PKCS#12 passwords tried after the one given
	// on the command line.
	Passwords []string `yaml:"passwords,omitempty"`
	Output    string   `yaml:"output,omitempty"` // "json" | "text"
}

func DefaultConfig() Config {
	return Config{
		Output: OutputText,
	}
}

func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if c.Output == "" {
		c.Output = OutputText
	}
	if c.Output != OutputJSON && c.Output != OutputText {
		return Config{}, fmt.Errorf("output must be %q or %q, got %q", OutputJSON, OutputText, c.Output)
	}
	return c, nil
}

func StoreConfig(w io.Writer, c Config) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}
