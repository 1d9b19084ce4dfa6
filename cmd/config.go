package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/nuts-foundation/fhir-access-gateway/cmd/core"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway"
	"github.com/nuts-foundation/fhir-access-gateway/component/http"
	"github.com/nuts-foundation/fhir-access-gateway/component/tracing"
	"github.com/spf13/pflag"
)

type Config struct {
	core.Config `koanf:",squash"`
	Gateway     gateway.Config `koanf:"gateway"`
	HTTP        http.Config    `koanf:"http"`
	Tracing     tracing.Config `koanf:"tracing"`
}

func DefaultConfig() Config {
	return Config{
		Config:  core.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
		HTTP:    http.DefaultConfig(),
		Tracing: tracing.DefaultConfig(),
	}
}

// Flags registers the CLI flags LoadConfig binds on top of file/env config.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	flags.String("config", "config/gateway.yml", "path to the YAML configuration file")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.Bool("dev-mode", false, "relax bundle role enforcement and log missing roles instead of denying")
	return flags
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// GATEWAY_-prefixed environment variables, DEV_MODE, and CLI flags, in
// that ascending order of precedence (flags > env > file > defaults).
func LoadConfig(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	defaultConfig := DefaultConfig()
	if err := k.Load(structs.Provider(defaultConfig, "koanf"), nil); err != nil {
		return Config{}, err
	}

	configPath := "config/gateway.yml"
	if flags != nil {
		if fromFlag, err := flags.GetString("config"); err == nil && fromFlag != "" {
			configPath = fromFlag
		}
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// PROXY_TO is also accepted unprefixed; GATEWAY_PROXY_TO, loaded next,
	// takes precedence over it when both are set.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		if s == "PROXY_TO" {
			return "gateway.proxyto"
		}
		return ""
	}), nil); err != nil {
		return Config{}, err
	}

	// GATEWAY_PROXY_TO -> gateway.proxyto, GATEWAY_SOCKET_TIMEOUT ->
	// gateway.sockettimeout, matching spec.md §6's flat env var names.
	if err := k.Load(env.Provider("GATEWAY_", ".", gatewayEnvKey), nil); err != nil {
		return Config{}, err
	}

	// DEV_MODE is named directly in spec.md §6, unprefixed.
	if err := k.Load(env.Provider("", ".", devModeEnvKey), nil); err != nil {
		return Config{}, err
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, err
		}
		if logLevel, _ := flags.GetString("log-level"); logLevel != "" {
			k.Set("loglevel", logLevel)
		}
		if flags.Changed("dev-mode") {
			if devMode, err := flags.GetBool("dev-mode"); err == nil {
				k.Set("gateway.devmode", devMode)
			}
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}

func gatewayEnvKey(s string) string {
	key := strings.TrimPrefix(s, "GATEWAY_")
	parts := strings.Split(key, "_")
	result := make([]string, len(parts))
	for i, part := range parts {
		result[i] = strings.ToLower(part)
	}
	return "gateway." + strings.Join(result, "")
}

func devModeEnvKey(s string) string {
	if s == "DEV_MODE" {
		return "gateway.devmode"
	}
	return ""
}
