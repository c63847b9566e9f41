package logging

import (
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger builds the single "Startup complete" event a binary emits
// once its dependencies are wired. Credentials are recorded as present or
// absent, never by value.
type StartupLogger struct {
	name     string
	version  string
	initTook time.Duration

	// resources is keyed by kind ("bucket", "table", "ssmParam"), then label.
	resources   map[string]map[string]string
	credentials map[string]bool
	features    map[string]bool
	settings    map[string]string
}

// NewStartupLogger creates a StartupLogger for the named binary.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:        name,
		resources:   make(map[string]map[string]string),
		credentials: make(map[string]bool),
		features:    make(map[string]bool),
		settings:    make(map[string]string),
	}
}

// Version sets the build identifier. Empty means "dev".
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Resource registers an external resource such as a bucket or table name.
// Empty values are skipped.
func (s *StartupLogger) Resource(kind, label, value string) *StartupLogger {
	if value == "" {
		return s
	}
	if s.resources[kind] == nil {
		s.resources[kind] = make(map[string]string)
	}
	s.resources[kind][label] = value
	return s
}

func (s *StartupLogger) Credential(name string, present bool) *StartupLogger {
	s.credentials[name] = present
	return s
}

func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive setting.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.settings[key] = value
	return s
}

func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initTook = d
	return s
}

// MissingCredentials returns the unset credential names in sorted order.
func (s *StartupLogger) MissingCredentials() []string {
	var missing []string
	for _, name := range sortedKeys(s.credentials) {
		if !s.credentials[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Log writes one WARN line per missing credential followed by the startup
// event. Requests that need a missing credential fail with a configuration
// error rather than the process exiting.
func (s *StartupLogger) Log() {
	for _, name := range s.MissingCredentials() {
		log.Warn().Str("credential", name).Msg("Credential is not set; requests that need it will fail")
	}

	version := s.version
	if version == "" {
		version = "dev"
	}
	process := zerolog.Dict().
		Str("name", s.name).
		Str("version", version).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH)
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		process = process.Str("functionName", fn).Str("region", os.Getenv("AWS_REGION"))
	}
	evt := log.Info().Dict("process", process)

	if len(s.resources) > 0 {
		res := zerolog.Dict()
		for _, kind := range sortedKeys(s.resources) {
			res = res.Dict(kind, strDict(s.resources[kind]))
		}
		evt = evt.Dict("resources", res)
	}
	if len(s.credentials) > 0 {
		evt = evt.Dict("credentials", boolDict(s.credentials))
	}
	if len(s.features) > 0 {
		evt = evt.Dict("features", boolDict(s.features))
	}
	if len(s.settings) > 0 {
		evt = evt.Dict("config", strDict(s.settings))
	}
	if s.initTook > 0 {
		evt = evt.Dur("initDuration", s.initTook)
	}
	evt.Msg("Startup complete")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func strDict(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func boolDict(m map[string]bool) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Bool(k, m[k])
	}
	return d
}
