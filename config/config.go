package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the deployment-level constants required before any
// correlation can run. It is loaded once and treated as immutable for
// the remainder of the run.
type Config struct {
	// The survey platform identifier, for example "MRITC".
	PlatformID string `yaml:"platform_id"`
	// The structured voyage identifier, for example "IN2018_V06".
	VoyageID string `yaml:"voyage_id"`
	// The structured deployment identifier, for example "IN2018_V06_001".
	DeploymentID string `yaml:"deployment_id"`
	// The name of the principal investigator for the voyage.
	VoyagePI string `yaml:"voyage_pi"`
	// An optional ORCID (or other) URI for the principal investigator.
	VoyagePIURI string `yaml:"voyage_pi_uri"`
	// Names credited as creators on packaged imagery.
	Creators []Creator `yaml:"creators"`
	// The license applied to packaged imagery.
	License License `yaml:"license"`
	// The copyright holder for packaged imagery.
	Copyright string `yaml:"copyright"`
	// An optional free-form abstract describing the deployment.
	Abstract string `yaml:"abstract"`
	// Settings for the external container-metadata extraction utility.
	FFProbe FFProbeConfig `yaml:"ffprobe"`
	// The bounding box (pixels) that thumbnails are scaled to fit.
	ThumbnailSize int `yaml:"thumbnail_size"`
}

// Creator identifies a person credited on packaged imagery.
type Creator struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
}

// License identifies the license applied to packaged imagery.
type License struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
}

// FFProbeConfig holds settings for invoking ffprobe.
type FFProbeConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {

	raw, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read config file %s, %w", path, err)
	}

	var cfg Config

	err = yaml.Unmarshal(raw, &cfg)

	if err != nil {
		return nil, fmt.Errorf("Failed to unmarshal config file %s, %w", path, err)
	}

	cfg.applyDefaults()

	err = cfg.validate()

	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {

	if c.FFProbe.Binary == "" {
		c.FFProbe.Binary = "ffprobe"
	}

	if c.FFProbe.Timeout == 0 {
		c.FFProbe.Timeout = 30 * time.Second
	}

	if c.ThumbnailSize == 0 {
		c.ThumbnailSize = 300
	}
}

func (c *Config) validate() error {

	if c.PlatformID == "" {
		return fmt.Errorf("platform_id is required")
	}

	if c.VoyageID == "" {
		return fmt.Errorf("voyage_id is required")
	}

	if c.DeploymentID == "" {
		return fmt.Errorf("deployment_id is required")
	}

	if c.VoyagePI == "" {
		return fmt.Errorf("voyage_pi is required")
	}

	if c.License.Name == "" {
		return fmt.Errorf("license.name is required")
	}

	return nil
}
