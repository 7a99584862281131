// Package config persists app settings: rider characteristics, the last
// connected trainer, and data directory overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Setting keys.
const (
	KeyRiderWeightKg     = "rider_weight_kg"
	KeyBikeWeightKg      = "bike_weight_kg"
	KeyLastDeviceAddress = "last_device_address"
	KeyLastDeviceName    = "last_device_name"
	KeyRoutesDir         = "routes_dir"
	KeyRidesDir          = "rides_dir"
)

// Defaults.
const (
	DefaultRiderWeightKg = 75.0
	DefaultBikeWeightKg  = 10.0
)

// Config wraps a viper instance bound to the app's config file. Reads fall
// back to defaults; explicit Set* calls write the file back out.
type Config struct {
	v      *viper.Viper
	path   string
	logger *log.Logger
}

// DataDir returns the app's data directory, creating it if needed. An
// empty baseDir resolves under the user's home directory.
func DataDir(baseDir string) (string, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "cranktui")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return baseDir, nil
}

// Load reads config.yaml from dataDir. A missing file is not an error; the
// returned Config serves defaults until something is saved.
func Load(dataDir string, logger *log.Logger) (*Config, error) {
	if logger == nil {
		panic("logger must not be nil")
	}

	v := viper.New()
	v.SetDefault(KeyRiderWeightKg, DefaultRiderWeightKg)
	v.SetDefault(KeyBikeWeightKg, DefaultBikeWeightKg)
	v.SetDefault(KeyLastDeviceAddress, "")
	v.SetDefault(KeyLastDeviceName, "")
	v.SetDefault(KeyRoutesDir, "")
	v.SetDefault(KeyRidesDir, "")

	path := filepath.Join(dataDir, "config.yaml")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		logger.Printf("Config: no file at %s, using defaults", path)
	}

	return &Config{v: v, path: path, logger: logger}, nil
}

// BindFlags overlays command-line flags onto the config. A flag the user
// passed wins over both the file and the defaults.
func (c *Config) BindFlags(flags *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyRiderWeightKg: "rider-weight",
		KeyBikeWeightKg:  "bike-weight",
		KeyRoutesDir:     "routes-dir",
	}
	for key, flagName := range bindings {
		if f := flags.Lookup(flagName); f != nil {
			if err := c.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag %s: %w", flagName, err)
			}
		}
	}
	return nil
}

func (c *Config) RiderWeightKg() float64 { return c.v.GetFloat64(KeyRiderWeightKg) }
func (c *Config) BikeWeightKg() float64  { return c.v.GetFloat64(KeyBikeWeightKg) }

// TotalMassKg is rider plus bike, the mass the physics model rides with.
func (c *Config) TotalMassKg() float64 {
	return c.RiderWeightKg() + c.BikeWeightKg()
}

func (c *Config) RoutesDir() string { return c.v.GetString(KeyRoutesDir) }
func (c *Config) RidesDir() string  { return c.v.GetString(KeyRidesDir) }

// LastDevice returns the address and name of the trainer that was connected
// most recently. Both are empty when none has been saved.
func (c *Config) LastDevice() (address, name string) {
	return c.v.GetString(KeyLastDeviceAddress), c.v.GetString(KeyLastDeviceName)
}

// SetLastDevice records the connected trainer so the next session can
// reconnect without a scan.
func (c *Config) SetLastDevice(address, name string) {
	c.v.Set(KeyLastDeviceAddress, address)
	c.v.Set(KeyLastDeviceName, name)
	c.save()
}

// ClearLastDevice forgets the saved trainer.
func (c *Config) ClearLastDevice() {
	c.v.Set(KeyLastDeviceAddress, "")
	c.v.Set(KeyLastDeviceName, "")
	c.save()
}

// SetRiderWeightKg updates and persists the rider's weight.
func (c *Config) SetRiderWeightKg(weightKg float64) {
	c.v.Set(KeyRiderWeightKg, weightKg)
	c.save()
}

// SetBikeWeightKg updates and persists the bike's weight.
func (c *Config) SetBikeWeightKg(weightKg float64) {
	c.v.Set(KeyBikeWeightKg, weightKg)
	c.save()
}

func (c *Config) save() {
	if err := c.v.WriteConfigAs(c.path); err != nil {
		c.logger.Printf("Config: save %s failed: %v", c.path, err)
	}
}
