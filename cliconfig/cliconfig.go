// Package cliconfig reads and writes the CLI configuration file: a TOML
// file at ~/.speechmatics/config holding per-profile defaults for the auth
// token and endpoint URLs. The file is read once at startup to fill
// missing connection settings; it is never global mutable state.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "default"

// Keys valid in a profile section.
const (
	KeyAuthToken         = "auth_token"
	KeyRealtimeURL       = "realtime_url"
	KeyBatchURL          = "batch_url"
	KeyGenerateTempToken = "generate_temp_token"
)

// Profile is one named section of the config file.
type Profile struct {
	AuthToken         string `mapstructure:"auth_token"`
	RealtimeURL       string `mapstructure:"realtime_url"`
	BatchURL          string `mapstructure:"batch_url"`
	GenerateTempToken bool   `mapstructure:"generate_temp_token"`
}

// File handles one config file. The zero Path means the default location
// under the user's home directory.
type File struct {
	Path string
}

// DefaultPath returns ~/.speechmatics/config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".speechmatics", "config"), nil
}

func (f *File) path() (string, error) {
	if f.Path != "" {
		return f.Path, nil
	}
	return DefaultPath()
}

func (f *File) read() (*viper.Viper, string, error) {
	path, err := f.path()
	if err != nil {
		return nil, "", err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return v, path, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, path, nil
		}
		return nil, "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return v, path, nil
}

// LoadProfile returns the named profile, or nil when the file or profile
// does not exist.
func (f *File) LoadProfile(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	v, _, err := f.read()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(name) {
		return nil, nil
	}
	var profile Profile
	if err := v.UnmarshalKey(name, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	return &profile, nil
}

// Set stores key/value pairs under the named profile, creating the file
// with owner-only permissions if needed.
func (f *File) Set(profile string, values map[string]any) error {
	if profile == "" {
		profile = DefaultProfile
	}
	v, path, err := f.read()
	if err != nil {
		return err
	}
	for key, value := range values {
		v.Set(profile+"."+key, value)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// Unset removes keys from the named profile. It is an error to unset keys
// of a profile that does not exist.
func (f *File) Unset(profile string, keys []string) error {
	if profile == "" {
		profile = DefaultProfile
	}
	v, path, err := f.read()
	if err != nil {
		return err
	}
	if !v.IsSet(profile) {
		return fmt.Errorf("cannot unset config for profile %q: profile does not exist", profile)
	}

	// Viper has no key deletion, so rebuild the settings map without the
	// removed keys and write that.
	settings := v.AllSettings()
	section, _ := settings[profile].(map[string]any)
	for _, key := range keys {
		delete(section, key)
	}
	if len(section) == 0 {
		delete(settings, profile)
	} else {
		settings[profile] = section
	}

	out := viper.New()
	out.SetConfigFile(path)
	out.SetConfigType("toml")
	for key, value := range settings {
		out.Set(key, value)
	}
	if err := out.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
