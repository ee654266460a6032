package cozo

import (
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/cozodb/cozo-sub000/cozoerr"
)

// Config is the database-wide configuration Open decodes from an opaque
// string option map, the same "engine, path, options" shape every binding
// passes through. Options unknown to this version are ignored rather than
// rejected, so older clients keep working against a newer engine.
type Config struct {
	// MaxTriggerDepth bounds trigger cascade recursion; 0 means use the
	// txn package's default.
	MaxTriggerDepth int `yaml:"max_trigger_depth"`
	// ReadOnly rejects any script carrying a mutation op at RunScript time,
	// independent of any individual relation's access level.
	ReadOnly bool `yaml:"read_only"`
	// DefaultTimeoutS applies to a script's queries that declare no
	// :timeout of their own; 0 means no default.
	DefaultTimeoutS float64 `yaml:"default_timeout_s"`
}

// DefaultConfig is Config's zero-option value: no trigger-depth override,
// writable, no default timeout.
func DefaultConfig() Config {
	return Config{}
}

// decodeConfig turns the options map open() receives (an opaque string map,
// per the programmatic API's calling convention) into a Config. Values are
// coerced with cast rather than type-asserted, since option maps arriving
// from bindings are always strings.
func decodeConfig(options map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if len(options) == 0 {
		return cfg, nil
	}

	// Round-trip through YAML so nested/typed option values (a binding may
	// pass "true"/"16"/"2.5") decode the same way a manifest file would,
	// rather than hand-rolling a coercion per field.
	raw := make(map[string]interface{}, len(options))
	for k, v := range options {
		raw[k] = v
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, cozoerr.ErrValidation.New("marshaling db options: " + err.Error())
	}
	var loose map[string]string
	if err := yaml.Unmarshal(b, &loose); err != nil {
		return cfg, cozoerr.ErrValidation.New("parsing db options: " + err.Error())
	}

	if v, ok := loose["max_trigger_depth"]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return cfg, cozoerr.ErrValidation.New("max_trigger_depth: " + err.Error())
		}
		cfg.MaxTriggerDepth = n
	}
	if v, ok := loose["read_only"]; ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return cfg, cozoerr.ErrValidation.New("read_only: " + err.Error())
		}
		cfg.ReadOnly = b
	}
	if v, ok := loose["default_timeout_s"]; ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return cfg, cozoerr.ErrValidation.New("default_timeout_s: " + err.Error())
		}
		cfg.DefaultTimeoutS = f
	}
	return cfg, nil
}
