package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the zikctl YAML configuration file.
//
//	address: "A0:14:3D:A2:11:0F"
//	request_timeout: 5s
//	cache_ttl: 30s
//	protocol_log: ~/.cache/zikctl/session.zlog
//	log_level: info
type FileConfig struct {
	// Address is the headset's Bluetooth MAC, or a tcp://host:port
	// debug address.
	Address string `yaml:"address"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`

	// ProtocolLog is a file path for CBOR protocol event capture.
	// Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	LogLevel string `yaml:"log_level"`
}

// loadConfig reads a YAML config file. A missing file with an empty
// explicit path is not an error.
func loadConfig(path string, required bool) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/zikctl/config.yaml"
}
