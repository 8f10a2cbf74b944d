package cli

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/jetrpay/streampay/internal/payroll"
)

//go:embed config.cue
var configSchema string

// Config is the optional CUE config file. Command-line flags override it.
//
//	db: "payroll.db"
//	log: { level: "debug", format: "json" }
//	policy: { initial_custody: "employee", overflow: "reject", emit_exhausted: true }
type Config struct {
	DB     string         `json:"db"`
	Log    LogConfig      `json:"log"`
	Policy payroll.Policy `json:"policy"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"`  // debug | info | warn | error
	Format string `json:"format"` // text | json
}

// ConfigError reports a config file that failed to parse or validate.
type ConfigError struct {
	Code    string
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// LoadConfig reads and validates a config file against the embedded schema.
// An empty path yields the zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, &ConfigError{Code: ErrCodeNotFound, Path: path, Message: "config file not found"}
		}
		return Config{}, &ConfigError{Code: ErrCodeConfig, Path: path, Message: err.Error()}
	}
	return ParseConfig(path, data)
}

// ParseConfig validates CUE source against the schema and decodes it.
// filename is used in error positions only.
func ParseConfig(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema, cue.Filename("config.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, configError(filename, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, configError(filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, configError(filename, err)
	}

	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, &ConfigError{Code: ErrCodeConfig, Path: filename, Message: err.Error()}
	}
	return cfg, nil
}

func configError(filename string, err error) error {
	msg := err.Error()
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		msg = cueerrors.Details(errs[0], nil)
	}
	return &ConfigError{Code: ErrCodeConfig, Path: filename, Message: msg}
}
