// Package projectconfig provides the ProjectConfig struct and loader for
// .stimseq.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/stimseq/internal/hooks"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".stimseq.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultImagesDir   = "data/images"
	DefaultAudiosDir   = "data/audios"
	DefaultResultsDir  = "results"
	DefaultCatalogsDir = "cfg"
	DefaultLogsDir     = "logs"

	DefaultPauseKey = "p"
	DefaultAbortKey = "escape"

	DefaultBaudRate      = 9600
	DefaultReadyDelayMs  = 5
	DefaultDialTimeoutMs = 1000

	ResultsFormatCSV    = "csv"
	ResultsFormatSQLite = "sqlite"
	ResultsFormatBoth   = "both"

	DefaultResultsFormat = ResultsFormatCSV
	DefaultSQLiteFile    = "sessions.db"
)

// DefaultPlayer is the audio player command used when none is configured.
var DefaultPlayer = []string{"aplay", "-q"}

// PathsConfig holds directory paths for stimuli, catalogs, results and logs.
type PathsConfig struct {
	Images   string `yaml:"images,omitempty"`
	Audios   string `yaml:"audios,omitempty"`
	Results  string `yaml:"results,omitempty"`
	Temp     string `yaml:"temp,omitempty"`
	Catalogs string `yaml:"catalogs,omitempty"`
	Logs     string `yaml:"logs,omitempty"`
}

// KeysConfig holds the operator control keys.
type KeysConfig struct {
	Pause string `yaml:"pause,omitempty"`
	Abort string `yaml:"abort,omitempty"`
}

// AudioConfig holds audio playback settings.
type AudioConfig struct {
	// Player is the command line used to play a clip. An argument containing
	// {file} is replaced by the clip path, otherwise the path is appended.
	Player []string `yaml:"player,omitempty"`
}

// TriggerConfig holds trigger link settings.
type TriggerConfig struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	TCPAddress    string `yaml:"tcp_address,omitempty"`
	SerialPort    string `yaml:"serial_port,omitempty"`
	BaudRate      int    `yaml:"baud_rate,omitempty"`
	ReadyDelayMs  int    `yaml:"ready_delay_ms,omitempty"`
	Prefix        string `yaml:"prefix,omitempty"`
	DialTimeoutMs int    `yaml:"dial_timeout_ms,omitempty"`
}

// ResultsConfig selects where finalized sessions are written.
type ResultsConfig struct {
	Format     string `yaml:"format,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// ArchiveConfig holds S3-compatible upload settings. Archiving is off while
// Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    *bool  `yaml:"use_ssl,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// ProjectConfig is the top-level configuration loaded from .stimseq.yaml.
type ProjectConfig struct {
	Paths      PathsConfig       `yaml:"paths,omitempty"`
	Keys       KeysConfig        `yaml:"keys,omitempty"`
	Audio      AudioConfig       `yaml:"audio,omitempty"`
	Trigger    TriggerConfig     `yaml:"trigger,omitempty"`
	Results    ResultsConfig     `yaml:"results,omitempty"`
	Archive    ArchiveConfig     `yaml:"archive,omitempty"`
	Hooks      hooks.HooksConfig `yaml:"hooks,omitempty"`
	SessionLog *bool             `yaml:"session_log,omitempty"`

	// Dir is the directory the configuration file was found in, or the start
	// directory when no file exists. Relative paths resolve against it.
	Dir string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Images:   DefaultImagesDir,
			Audios:   DefaultAudiosDir,
			Results:  DefaultResultsDir,
			Catalogs: DefaultCatalogsDir,
			Logs:     DefaultLogsDir,
		},
		Keys: KeysConfig{
			Pause: DefaultPauseKey,
			Abort: DefaultAbortKey,
		},
		Audio: AudioConfig{
			Player: append([]string(nil), DefaultPlayer...),
		},
		Trigger: TriggerConfig{
			Enabled:       boolPtr(false),
			BaudRate:      DefaultBaudRate,
			ReadyDelayMs:  DefaultReadyDelayMs,
			DialTimeoutMs: DefaultDialTimeoutMs,
		},
		Results: ResultsConfig{
			Format: DefaultResultsFormat,
		},
		Archive: ArchiveConfig{
			UseSSL: boolPtr(true),
		},
		SessionLog: boolPtr(false),
	}
}

// Load finds .stimseq.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, dir, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.Dir = dir
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	fileCfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	mergeConfig(cfg, fileCfg)
	cfg.Dir = dir
	return cfg, nil
}

// LoadFile reads the configuration at path and merges it onto the defaults.
// Relative paths in it resolve against the file's directory.
func LoadFile(path string) (*ProjectConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	fileCfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg := New()
	mergeConfig(cfg, fileCfg)
	cfg.Dir = filepath.Dir(abs)
	return cfg, nil
}

// Find returns the path of the nearest .stimseq.yaml above startDir.
func Find(startDir string) (string, error) {
	_, dir, err := findConfigFile(startDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Parse decodes raw configuration without applying defaults.
func Parse(data []byte) (*ProjectConfig, error) {
	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &fileCfg, nil
}

// Resolve returns p relative to the configuration directory unless it is
// already absolute or empty.
func (c *ProjectConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// findConfigFile walks up from dir looking for .stimseq.yaml (max 10 levels).
// Returns os.ErrNotExist, along with the absolute start directory, if no
// config file is found. Propagates real I/O errors instead of swallowing them.
func findConfigFile(dir string) ([]byte, string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, absDir, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Images != "" {
		dst.Paths.Images = src.Paths.Images
	}
	if src.Paths.Audios != "" {
		dst.Paths.Audios = src.Paths.Audios
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}
	if src.Paths.Temp != "" {
		dst.Paths.Temp = src.Paths.Temp
	}
	if src.Paths.Catalogs != "" {
		dst.Paths.Catalogs = src.Paths.Catalogs
	}
	if src.Paths.Logs != "" {
		dst.Paths.Logs = src.Paths.Logs
	}

	// Keys
	if src.Keys.Pause != "" {
		dst.Keys.Pause = src.Keys.Pause
	}
	if src.Keys.Abort != "" {
		dst.Keys.Abort = src.Keys.Abort
	}

	// Audio
	if len(src.Audio.Player) > 0 {
		dst.Audio.Player = src.Audio.Player
	}

	// Trigger
	if src.Trigger.Enabled != nil {
		dst.Trigger.Enabled = src.Trigger.Enabled
	}
	if src.Trigger.TCPAddress != "" {
		dst.Trigger.TCPAddress = src.Trigger.TCPAddress
	}
	if src.Trigger.SerialPort != "" {
		dst.Trigger.SerialPort = src.Trigger.SerialPort
	}
	if src.Trigger.BaudRate != 0 {
		dst.Trigger.BaudRate = src.Trigger.BaudRate
	}
	if src.Trigger.ReadyDelayMs != 0 {
		dst.Trigger.ReadyDelayMs = src.Trigger.ReadyDelayMs
	}
	if src.Trigger.Prefix != "" {
		dst.Trigger.Prefix = src.Trigger.Prefix
	}
	if src.Trigger.DialTimeoutMs != 0 {
		dst.Trigger.DialTimeoutMs = src.Trigger.DialTimeoutMs
	}

	// Results
	if src.Results.Format != "" {
		dst.Results.Format = src.Results.Format
	}
	if src.Results.SQLitePath != "" {
		dst.Results.SQLitePath = src.Results.SQLitePath
	}

	// Archive
	if src.Archive.Endpoint != "" {
		dst.Archive.Endpoint = src.Archive.Endpoint
	}
	if src.Archive.Bucket != "" {
		dst.Archive.Bucket = src.Archive.Bucket
	}
	if src.Archive.AccessKey != "" {
		dst.Archive.AccessKey = src.Archive.AccessKey
	}
	if src.Archive.SecretKey != "" {
		dst.Archive.SecretKey = src.Archive.SecretKey
	}
	if src.Archive.UseSSL != nil {
		dst.Archive.UseSSL = src.Archive.UseSSL
	}
	if src.Archive.Region != "" {
		dst.Archive.Region = src.Archive.Region
	}
	if src.Archive.Prefix != "" {
		dst.Archive.Prefix = src.Archive.Prefix
	}

	// Hooks
	if len(src.Hooks.BeforeSession) > 0 {
		dst.Hooks.BeforeSession = src.Hooks.BeforeSession
	}
	if len(src.Hooks.AfterSession) > 0 {
		dst.Hooks.AfterSession = src.Hooks.AfterSession
	}

	if src.SessionLog != nil {
		dst.SessionLog = src.SessionLog
	}
}

func boolPtr(b bool) *bool {
	return &b
}
