package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "emslink"
	configFile = "config.yaml"

	// ConfigEnvVar overrides the config file location.
	ConfigEnvVar = "EMSLINK_CONFIG"
)

var (
	// Global registry instance (loaded lazily)
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Mutex for thread-safe file operations
	fileMutex sync.Mutex
)

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/emslink or $HOME/.config/emslink
//   - macOS: $HOME/.config/emslink (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\emslink
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
// EMSLINK_CONFIG, when set, wins over the platform location.
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// LoadRegistry loads the configuration registry from disk.
// If the file doesn't exist, returns a new default registry.
// Thread-safe - multiple calls will return the same instance.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		var path string
		path, globalRegistryErr = GetConfigPath()
		if globalRegistryErr != nil {
			globalRegistryErr = fmt.Errorf("failed to get config path: %w", globalRegistryErr)
			return
		}
		globalRegistry, globalRegistryErr = LoadFrom(path)
	})
	return globalRegistry, globalRegistryErr
}

// LoadFrom reads a registry from path. A missing file yields the defaults.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure maps and sections are initialized
	if registry.Devices == nil {
		registry.Devices = make(map[string]*Device)
	}
	if registry.Preferences == nil {
		registry.Preferences = defaultPreferences()
	}
	if registry.Bridge == nil {
		registry.Bridge = &Bridge{}
	}

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &registry, nil
}

// Save saves the registry to the default location.
func (r *Registry) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(configPath)
}

// SaveTo writes the registry to path.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) SaveTo(configPath string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# emslink configuration file
# Bridge connection, GATT identifiers, device nicknames and presets.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// ReloadRegistry reloads the registry from disk, discarding any in-memory changes.
// This is useful for reading changes made by another process.
func ReloadRegistry() (*Registry, error) {
	fileMutex.Lock()
	globalRegistryOnce = sync.Once{}
	fileMutex.Unlock()
	return LoadRegistry()
}

// SaveGlobal saves the global registry instance to disk.
func SaveGlobal() error {
	registry, err := LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	return registry.Save()
}

// CreateDefaultConfig writes a starter configuration with an example device.
func CreateDefaultConfig(path string) error {
	registry := NewRegistry()
	registry.SetDeviceNickname("living-room", "Living room pad")
	if err := registry.SetDeviceChannels("living-room", 2); err != nil {
		return err
	}
	if err := registry.SetPreset("living-room", "evening", &Preset{
		Mode:      "relax",
		Intensity: 6,
		WorkTime:  20,
	}); err != nil {
		return err
	}
	return registry.SaveTo(path)
}
