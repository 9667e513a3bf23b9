package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Face       FaceConfig       `yaml:"face"`
	Roster     RosterConfig     `yaml:"roster"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
}

type FaceConfig struct {
	Backend      string  `yaml:"backend"`        // "http" or "dlib"
	ServiceURL   string  `yaml:"service_url"`    // embedding server base URL for the http backend
	Model        string  `yaml:"model"`          // model served by the embedding server, keys cached references
	ModelsDir    string  `yaml:"models_dir"`     // dlib model files for the dlib backend
	Tolerance    float64 `yaml:"tolerance"`      // maximum distance accepted as a match
	Metric       string  `yaml:"metric"`         // "euclidean" or "cosine"
	MaxImageSize int     `yaml:"max_image_size"` // longest edge in pixels before detection, 0 disables resizing

	// Profiles holds the metric and tolerance suited to each backend's descriptors.
	Profiles map[string]MatchProfile `yaml:"profiles"`
}

// MatchProfile pairs a distance metric with the tolerance calibrated for it.
type MatchProfile struct {
	Metric    string  `yaml:"metric"`
	Tolerance float64 `yaml:"tolerance"`
}

// Profile returns the match profile for backend. An empty backend means http.
func (f FaceConfig) Profile(backend string) MatchProfile {
	if backend == "" {
		backend = "http"
	}
	return f.Profiles[backend]
}

type RosterConfig struct {
	Column     string   `yaml:"column"`
	Extensions []string `yaml:"extensions"` // tried in order when resolving reference images
}

type AttendanceConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // "csv" or "xlsx"
}

type DatabaseConfig struct {
	URL          string `yaml:"-"` // PostgreSQL connection URL, empty disables the cache and history
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float from the environment, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list, e.g. "jpg,jpeg,png".
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), ".")
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// Defaults returns the configuration baked into the binary.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	p := cfg.Face.Profile(cfg.Face.Backend)
	if cfg.Face.Metric == "" {
		cfg.Face.Metric = p.Metric
	}
	if cfg.Face.Tolerance <= 0 {
		cfg.Face.Tolerance = p.Tolerance
	}
	return &cfg
}

// Load returns the defaults overridden by environment variables.
// Metric and tolerance default to the profile of the selected backend.
func Load() *Config {
	d := Defaults()
	backend := envString("FACE_BACKEND", d.Face.Backend)
	profile := d.Face.Profile(backend)
	if profile.Metric == "" {
		profile = MatchProfile{Metric: d.Face.Metric, Tolerance: d.Face.Tolerance}
	}

	return &Config{
		Face: FaceConfig{
			Backend:      backend,
			ServiceURL:   envString("FACE_SERVICE_URL", d.Face.ServiceURL),
			Model:        envString("FACE_MODEL", d.Face.Model),
			ModelsDir:    envString("FACE_MODELS_DIR", d.Face.ModelsDir),
			Tolerance:    envFloat("FACE_TOLERANCE", profile.Tolerance),
			Metric:       envString("FACE_METRIC", profile.Metric),
			MaxImageSize: envInt("FACE_MAX_IMAGE_SIZE", d.Face.MaxImageSize),
			Profiles:     d.Face.Profiles,
		},
		Roster: RosterConfig{
			Column:     envString("ROSTER_COLUMN", d.Roster.Column),
			Extensions: envList("REFERENCE_EXTENSIONS", d.Roster.Extensions),
		},
		Attendance: AttendanceConfig{
			Dir:    envString("ATTENDANCE_DIR", d.Attendance.Dir),
			Format: envString("ATTENDANCE_FORMAT", d.Attendance.Format),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
	}
}
