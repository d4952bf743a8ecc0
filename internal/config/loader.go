package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${NAME} and ${NAME:-default} references in a raw
// config file, the same substitution grammar the teacher's loader supports
// so operators can keep the LLM API key and other secrets out of the
// checked-in rule/config files.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

func substituteEnvVars(raw string) string {
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// Loader loads, reloads, and serves a Config, defaulting to DefaultConfig
// when no file has been loaded yet. Grounded on the teacher's config.Loader
// (mutex-guarded Get/Reload over a loaded file path).
type Loader struct {
	mu       sync.RWMutex
	cfg      *Config
	filePath string
}

// NewLoader returns a Loader pre-populated with DefaultConfig.
func NewLoader() *Loader {
	return &Loader{cfg: DefaultConfig()}
}

// Load reads and parses the YAML config file at path, substituting
// ${VAR}/${VAR:-default} references before unmarshaling onto a fresh
// DefaultConfig (so fields the file omits keep their defaults).
func (l *Loader) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	expanded := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.filePath = path
	l.mu.Unlock()
	return nil
}

// Reload re-reads the most recently Loaded file. Returns an error if Load
// has never been called.
func (l *Loader) Reload() error {
	l.mu.RLock()
	path := l.filePath
	l.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config file has been loaded")
	}
	return l.Load(path)
}

// Get returns the currently loaded Config.
func (l *Loader) Get() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.cfg
}

// FilePath returns the path of the most recently Loaded file, or "" if
// none has been loaded.
func (l *Loader) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filePath
}

// defaultConfigTemplate is written out by GenerateDefault and by
// `superego init`. Comments document each section for an operator editing
// it by hand.
const defaultConfigTemplate = `# superego.yaml -- generated by "superego init"
server:
  http_addr: ":8737"   # empty disables the HTTP gateway
  stdio: false         # run the stdio hook transport on stdin/stdout
  log_level: info

rules:
  path: config/rules.yaml

sampler:
  failure_threshold: 5
  recovery_timeout: 30s
  operation_timeout: 10s
  # LLM endpoint credentials come from the environment, not this file:
  #   SUPEREGO_LLM_BASE_URL, SUPEREGO_LLM_API_KEY, SUPEREGO_LLM_MODEL

sanitize:
  enabled: true

audit:
  capacity: 10000
  sqlite_path: ""   # set to enable persistent audit storage, e.g. ./superego-audit.db

health:
  poll_interval: 5s
`

// GenerateDefault writes the starter config template to path, refusing to
// overwrite an existing file.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(defaultConfigTemplate)+"\n"), 0644)
}
