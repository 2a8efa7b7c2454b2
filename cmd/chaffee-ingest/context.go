package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/logging"
)

// errConfiguration wraps every failure that occurs before the pipeline run
// loop starts: config parse/validate, directory creation, preflight checks.
// It maps to the documented exit code 2.
var errConfiguration = errors.New("configuration error")

// commandContext lazily loads and caches config across a command
// invocation, mirroring the teacher's commandContext.ensureConfig pattern.
type commandContext struct {
	configFlag *string
	logLevel   *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevel *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, logLevel: logLevel, verbose: verbose}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("%w: %v", errConfiguration, err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = fmt.Errorf("%w: %v", errConfiguration, err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if c != nil && c.logLevel != nil {
		if trimmed := strings.TrimSpace(*c.logLevel); trimmed != "" {
			return trimmed
		}
	}
	if c != nil && c.verbose != nil && *c.verbose {
		return "debug"
	}
	if cfg != nil {
		if trimmed := strings.TrimSpace(cfg.Logging.Level); trimmed != "" {
			return trimmed
		}
	}
	return "info"
}

func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	effective := *cfg
	effective.Logging.Level = c.resolvedLogLevel(cfg)
	logger, err := logging.NewFromConfig(&effective)
	if err != nil {
		return nil, fmt.Errorf("%w: init logger: %v", errConfiguration, err)
	}
	return logger, nil
}
