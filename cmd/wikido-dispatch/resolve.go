package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wikido/wikido-dispatch/internal/application"
	"github.com/wikido/wikido-dispatch/internal/config"
	"github.com/wikido/wikido-dispatch/internal/dispatch"
	"github.com/wikido/wikido-dispatch/internal/settings"
)

const (
	outputPath = "path"
	outputJSON = "json"
	outputYAML = "yaml"
)

// flagEnvironment layers non-empty flag values over env.
func flagEnvironment(env dispatch.Environment, flags map[string]string) dispatch.Environment {
	return dispatch.EnvironmentFunc(func(key string) (string, bool) {
		if v := flags[key]; v != "" {
			return v, true
		}
		return env.Lookup(key)
	})
}

// resolve dispatches the invocation described by env and writes the result
// to w. It reports false without writing anything when env was not set up by
// a wiki entry point.
func resolve(w io.Writer, cfg config.Config, logger *zap.Logger, env dispatch.Environment, output string) (bool, error) {
	d, err := application.NewDispatcher(cfg, nil, logger, dispatch.WithEntryGuard(env, cfg.EntryMarker))
	if err != nil {
		return false, err
	}

	tenantCfg, err := d.Dispatch(dispatch.ContextFromEnvironment(env, cfg.DatabaseVar, cfg.ServerNameVar))
	if errors.Is(err, dispatch.ErrNoEntryPoint) {
		logger.Debug("not invoked through an entry point, nothing to do")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := writeTenantConfig(w, tenantCfg, output); err != nil {
		return false, err
	}
	return true, nil
}

func writeTenantConfig(w io.Writer, cfg settings.TenantConfig, output string) error {
	switch output {
	case outputPath, "":
		_, err := fmt.Fprintln(w, cfg.Source)
		return err
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}
