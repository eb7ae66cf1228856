package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/claudine-auth/internal/app"
)

// envPrefix marks environment variables that carry configuration,
// e.g. CLAUDINE_AUTH_REFRESH__COOLDOWN → refresh.cooldown.
const envPrefix = "CLAUDINE_AUTH_"

// configPathEnv names the config file when --config is not given.
const configPathEnv = envPrefix + "CONFIG"

// localFlags are per-invocation inputs that never map onto app.Config.
var localFlags = map[string]struct{}{
	"config":   {},
	"email":    {},
	"password": {},
}

// configSource is one layer of configuration. Later layers win.
type configSource struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// loadConfig merges the config file, CLAUDINE_AUTH_* environment variables and
// explicitly set CLI flags, in that order, then applies defaults and validates.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	environ := environFunc()
	if configPath == "" {
		configPath = lookupEnv(environ, configPathEnv)
	}

	var sources []configSource
	if configPath != "" {
		sources = append(sources, configSource{"config file", file.Provider(configPath), toml.Parser()})
	}
	sources = append(sources, configSource{
		name: "environment variables",
		provider: env.Provider(".", env.Opt{
			Prefix:        envPrefix,
			TransformFunc: envKey,
			EnvironFunc:   func() []string { return environ },
		}),
	})
	if cmd != nil {
		sources = append(sources, configSource{"CLI flags", confmap.Provider(extractAndTransformFlags(cmd), "."), nil})
	}

	k := koanf.New(".")
	for _, src := range sources {
		if err := k.Load(src.provider, src.parser); err != nil {
			return nil, fmt.Errorf("loading %s: %w", src.name, err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps CLAUDINE_AUTH_AUTH__REDIS__ADDR to auth.redis.addr.
// The config path variable is not a config key and is dropped.
func envKey(key, value string) (string, any) {
	if key == configPathEnv {
		return "", nil
	}
	stripped := strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
}

func lookupEnv(environ []string, name string) string {
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, name+"="); ok {
			return v
		}
	}
	return ""
}

// extractAndTransformFlags maps explicitly set flags, including those of parent
// commands, onto config keys: --auth--storage → auth.storage, --log-level → log_level.
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if _, ok := localFlags[name]; ok {
			continue
		}
		// Flag defaults must not shadow the file or environment.
		if !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
			values[key] = value
		}
	}
	return values
}
