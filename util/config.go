package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "suddenly"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host            string
		HttpPort        int    `yaml:"httpPort"`
		SslDomain       string `yaml:"sslDomain"`
		SiteName        string `yaml:"siteName"`
		SiteDescription string `yaml:"siteDescription"`
		KeysDir         string `yaml:"keysDir"`
		OpenReg         bool   `yaml:"openRegistrations"`
	}
}

// BaseURL returns the public https base URL of this instance, without a
// trailing slash. All locally minted ActivityPub ids start with it.
func (c *AppConfig) BaseURL() string {
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Infof("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warnf("Could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("SUDDENLY_HOST")
	envHttpPort := os.Getenv("SUDDENLY_HTTPPORT")
	envSslDomain := os.Getenv("SUDDENLY_SSLDOMAIN")
	envSiteName := os.Getenv("SUDDENLY_SITENAME")
	envSiteDescription := os.Getenv("SUDDENLY_SITEDESCRIPTION")
	envKeysDir := os.Getenv("SUDDENLY_KEYSDIR")
	envOpenReg := os.Getenv("SUDDENLY_OPENREG")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Warnf("Invalid SUDDENLY_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = v
		}
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envSiteName != "" {
		c.Conf.SiteName = envSiteName
	}

	if envSiteDescription != "" {
		c.Conf.SiteDescription = envSiteDescription
	}

	if envKeysDir != "" {
		c.Conf.KeysDir = envKeysDir
	}

	if envOpenReg == "true" {
		c.Conf.OpenReg = true
	}

	return c, nil
}
