// Command clockdb builds relations in forward, backward and random key order,
// indexes them through a shared buffer pool and checks range scans against
// known result counts.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"clockdb/logger"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	relationSize := flag.Int("relation-size", 0, "records per relation (overrides config)")
	orders := flag.String("order", "", "comma separated orders: forward,backward,random (overrides config)")
	frames := flag.Int("frames", 0, "buffer pool frames (overrides config)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *relationSize > 0 {
		cfg.RelationSize = *relationSize
	}
	if *orders != "" {
		cfg.Orders = strings.Split(*orders, ",")
	}
	if *frames > 0 {
		cfg.Frames = *frames
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg.Log.Console = true
	zl, err := logger.NewFile(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: setup logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	if err := Run(cfg, zl); err != nil {
		zl.Error("harness failed", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	zl.Info("all checks passed")
}
