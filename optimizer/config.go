package optimizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"

	"go.viam.com/posegraph/solver"
)

// Names of the supported nonlinear algorithms.
const (
	AlgorithmGaussNewton = "gn"
	AlgorithmLevenberg   = "lm"
)

// Config contains the parameters of an optimization run.
type Config struct {
	Algorithm    string `json:"algorithm" toml:"algorithm"`
	LinearSolver string `json:"linear_solver" toml:"linear_solver"`
	// MaxIterations is used when Optimize is called with a non-positive iteration count.
	MaxIterations int `json:"max_iterations" toml:"max_iterations"`
	// Epsilon stops the loop when the relative chi2 change of an accepted step is below it.
	Epsilon float64 `json:"epsilon" toml:"epsilon"`
	// IncrementEpsilon stops the loop when the largest increment component is below it.
	IncrementEpsilon    float64 `json:"increment_epsilon" toml:"increment_epsilon"`
	InitialLambdaFactor float64 `json:"initial_lambda_factor" toml:"initial_lambda_factor"`
	MaxLambdaTrials     int     `json:"max_lambda_trials" toml:"max_lambda_trials"`
	// Workers linearizing edges in parallel; 0 or 1 linearizes on the calling goroutine.
	Workers             int  `json:"workers" toml:"workers"`
	Level               int  `json:"level" toml:"level"`
	ComputeInitialGuess bool `json:"compute_initial_guess" toml:"compute_initial_guess"`
	TimeoutMs           int  `json:"timeout_ms" toml:"timeout_ms"`
	Verbose             bool `json:"verbose" toml:"verbose"`
}

// DefaultConfig returns a Levenberg-Marquardt configuration on the sparse Cholesky solver.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:           AlgorithmLevenberg,
		LinearSolver:        solver.NameSparseCholesky,
		MaxIterations:       20,
		Epsilon:             1e-6,
		IncrementEpsilon:    1e-9,
		InitialLambdaFactor: 1e-5,
		MaxLambdaTrials:     10,
	}
}

// Timeout returns the wall clock budget of one Optimize call, 0 for none.
func (conf *Config) Timeout() time.Duration {
	return time.Duration(conf.TimeoutMs) * time.Millisecond
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	switch conf.Algorithm {
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "algorithm")
	case AlgorithmGaussNewton, AlgorithmLevenberg:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown algorithm %q", conf.Algorithm))
	}
	if conf.LinearSolver == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "linear_solver")
	}
	if _, err := solver.New(conf.LinearSolver); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if conf.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative"))
	}
	if conf.Epsilon < 0 || conf.IncrementEpsilon < 0 {
		return utils.NewConfigValidationError(path, errors.New("convergence thresholds cannot be negative"))
	}
	if conf.Algorithm == AlgorithmLevenberg {
		if conf.InitialLambdaFactor <= 0 {
			return utils.NewConfigValidationError(path, errors.New("initial_lambda_factor must be positive"))
		}
		if conf.MaxLambdaTrials < 1 {
			return utils.NewConfigValidationError(path, errors.New("max_lambda_trials must be at least 1"))
		}
	}
	if conf.Workers < 0 {
		return utils.NewConfigValidationError(path, errors.New("workers cannot be negative"))
	}
	if conf.TimeoutMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("timeout_ms cannot be negative"))
	}
	return nil
}

// LoadConfig reads a .json, .json5 or .toml file on top of the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		//nolint:gosec
		configFile, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open optimizer config %s", path)
		}
		defer utils.UncheckedErrorFunc(configFile.Close)
		decoder := json.NewDecoder(configFile)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(conf); err != nil {
			return nil, errors.Wrapf(err, "cannot decode optimizer config %s", path)
		}
	case ".json5":
		//nolint:gosec
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open optimizer config %s", path)
		}
		var attributes map[string]interface{}
		if err := json5.Unmarshal(data, &attributes); err != nil {
			return nil, errors.Wrapf(err, "cannot decode optimizer config %s", path)
		}
		if err := decodeAttributes(conf, attributes); err != nil {
			return nil, errors.Wrapf(err, "cannot decode optimizer config %s", path)
		}
	case ".toml":
		md, err := toml.DecodeFile(path, conf)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode optimizer config %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Errorf("unknown keys in optimizer config %s: %v", path, undecoded)
		}
	default:
		return nil, errors.Errorf("unsupported optimizer config extension %q", ext)
	}
	if err := conf.Validate(path); err != nil {
		return nil, err
	}
	return conf, nil
}

// NewConfigFromAttributes decodes an attribute map, keyed like the JSON form, on top of the
// defaults.
func NewConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	conf := DefaultConfig()
	if err := decodeAttributes(conf, attributes); err != nil {
		return nil, err
	}
	if err := conf.Validate("attributes"); err != nil {
		return nil, err
	}
	return conf, nil
}

// decodeAttributes overlays attributes onto conf; unknown keys are an error.
func decodeAttributes(conf *Config, attributes map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           conf,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(attributes)
}
