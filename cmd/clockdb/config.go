package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"clockdb/logger"
	"clockdb/storage"
)

const (
	defaultDataDir      = "clockdb-data"
	defaultRelation     = "relA"
	defaultRelationSize = 5000
	defaultFrames       = 100
)

// Config drives a harness run.
type Config struct {
	DataDir      string            `yaml:"data_dir"`
	Relation     string            `yaml:"relation"`
	RelationSize int               `yaml:"relation_size"`
	Orders       []string          `yaml:"orders"` // forward, backward, random
	Seed         uint64            `yaml:"seed"`
	Frames       int               `yaml:"buffer_frames"`
	LeafCapacity int               `yaml:"leaf_capacity"` // 0 means as many as fit a page
	NodeCapacity int               `yaml:"node_capacity"`
	Backend      string            `yaml:"storage_backend"` // buffered, directio, mmap
	MetricsFile  string            `yaml:"metrics_file"`
	DumpFrames   bool              `yaml:"dump_frames"`
	Log          logger.FileConfig `yaml:"log"`
}

// LoadConfig reads a YAML config file and fills in defaults. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Relation == "" {
		c.Relation = defaultRelation
	}
	if c.RelationSize == 0 {
		c.RelationSize = defaultRelationSize
	}
	if len(c.Orders) == 0 {
		c.Orders = []string{"forward", "backward", "random"}
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.Frames == 0 {
		c.Frames = defaultFrames
	}
	if c.Backend == "" {
		c.Backend = "buffered"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Join(c.DataDir, "log")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 30
	}
}

func (c *Config) validate() error {
	if c.RelationSize < 0 {
		return fmt.Errorf("relation_size must not be negative: %d", c.RelationSize)
	}
	for _, o := range c.Orders {
		switch o {
		case "forward", "backward", "random":
		default:
			return fmt.Errorf("unknown order %q", o)
		}
	}
	if _, err := c.storageOptions(); err != nil {
		return err
	}
	return c.Log.Validate()
}

func (c *Config) storageOptions() ([]storage.Option, error) {
	switch c.Backend {
	case "buffered":
		return nil, nil
	case "directio":
		return []storage.Option{storage.WithDirectIO()}, nil
	case "mmap":
		return []storage.Option{storage.WithMMap()}, nil
	default:
		return nil, fmt.Errorf("unknown storage_backend %q", c.Backend)
	}
}
