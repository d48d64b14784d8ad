package config

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// yamlDefaults is the shape of the optional static config file: the
// handful of settings operators tend to check into version control
// (provider fallback order, model defaults, trust TLDs) rather than
// pass as environment variables per deployment. Environment variables
// still win when both are set; see applyYAMLDefaults call sites in Load.
type yamlDefaults struct {
	DefaultSearchProviders []string `yaml:"default_search_providers"`
	DomainBlocklist        []string `yaml:"domain_blocklist"`
	PrivilegedTLDs         []string `yaml:"privileged_tlds"`
	ReasoningModel         *struct {
		Name          string  `yaml:"name"`
		Provider      string  `yaml:"provider"`
		Temperature   float64 `yaml:"temperature"`
		ContextWindow int     `yaml:"context_window"`
	} `yaml:"reasoning_model"`
	SynthesisModel *struct {
		Name          string  `yaml:"name"`
		Provider      string  `yaml:"provider"`
		Temperature   float64 `yaml:"temperature"`
		ContextWindow int     `yaml:"context_window"`
	} `yaml:"synthesis_model"`
}

// loadYAMLDefaults reads path (if it exists) and decodes it into
// yamlDefaults. A missing file is not an error: the YAML overlay is
// entirely optional, env vars and hardcoded defaults cover every field.
func loadYAMLDefaults(path string) (yamlDefaults, error) {
	var y yamlDefaults
	if path == "" {
		return y, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return y, nil
		}
		return y, err
	}
	if err := yaml.Unmarshal(data, &y); err != nil {
		return y, err
	}
	return y, nil
}

// applyYAMLDefaults fills cfg fields the YAML file sets, but only where
// the corresponding environment variable was left unset — env vars always
// win over the checked-in file. A model descriptor is replaced whole, and
// only its model-name variable (LIVE_SEARCH_REASONING_MODEL or
// LIVE_SEARCH_SYNTHESIS_MODEL) blocks that; its provider, temperature and
// context-window variables do not.
func applyYAMLDefaults(cfg *Config, y yamlDefaults) {
	if os.Getenv("LIVE_SEARCH_DEFAULT_PROVIDERS") == "" && len(y.DefaultSearchProviders) > 0 {
		cfg.Providers.DefaultSearchProviders = y.DefaultSearchProviders
	}
	if os.Getenv("LIVE_SEARCH_DOMAIN_BLOCKLIST") == "" && len(y.DomainBlocklist) > 0 {
		cfg.Research.DomainBlocklist = y.DomainBlocklist
	}
	if os.Getenv("LIVE_SEARCH_TRUST_PRIVILEGED_TLDS") == "" && len(y.PrivilegedTLDs) > 0 {
		cfg.Trust.PrivilegedTLDs = y.PrivilegedTLDs
	}
	if os.Getenv("LIVE_SEARCH_REASONING_MODEL") == "" && y.ReasoningModel != nil {
		cfg.LLM.DefaultReasoningModel = ModelInfo{
			Name: y.ReasoningModel.Name, Provider: y.ReasoningModel.Provider,
			Temperature: y.ReasoningModel.Temperature, ContextWindow: y.ReasoningModel.ContextWindow,
		}
	}
	if os.Getenv("LIVE_SEARCH_SYNTHESIS_MODEL") == "" && y.SynthesisModel != nil {
		cfg.LLM.DefaultSynthesisModel = ModelInfo{
			Name: y.SynthesisModel.Name, Provider: y.SynthesisModel.Provider,
			Temperature: y.SynthesisModel.Temperature, ContextWindow: y.SynthesisModel.ContextWindow,
		}
	}
	log.Debug().Msg("config: applied yaml defaults overlay")
}
