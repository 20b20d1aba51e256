package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Editor  EditorConfig  `json:"editor"`
	Task    TaskConfig    `json:"task"`
	Render  RenderConfig  `json:"render"`
	Suggest SuggestConfig `json:"suggest"`
	Log     LogConfig     `json:"log"`
}

// EditorConfig holds interaction and label codec settings
type EditorConfig struct {
	HandleHalfWidth float64 `json:"handle_half_width"`
	MinDrawDistance float64 `json:"min_draw_distance"`
	UnknownLabel    string  `json:"unknown_label"`
	UnknownPolicy   string  `json:"unknown_policy"`
}

// TaskConfig holds the task directory layout
type TaskConfig struct {
	TasksRoot       string   `json:"tasks_root"`
	ImagesDir       string   `json:"images_dir"`
	ClassesFile     string   `json:"classes_file"`
	ResultDir       string   `json:"result_dir"`
	ImageExtensions []string `json:"image_extensions"`
}

// RenderConfig holds settings for annotated previews
type RenderConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
	Stroke   int    `json:"stroke"`
}

// SuggestConfig holds settings for box suggestions
type SuggestConfig struct {
	Backend       string  `json:"backend"`
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
	SendSize      int     `json:"send_size"`
	SendQuality   int     `json:"send_quality"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Backends accepted by suggest.backend.
var Backends = []string{"none", "saliency", "ollama", "llamacpp"}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			HandleHalfWidth: 5,
			MinDrawDistance: 5,
			UnknownLabel:    "unknown",
			UnknownPolicy:   "preserve",
		},
		Task: TaskConfig{
			TasksRoot:       "Tasks",
			ImagesDir:       "images",
			ClassesFile:     "classes.txt",
			ResultDir:       "Result",
			ImageExtensions: []string{"jpg", "jpeg", "png", "webp"},
		},
		Render: RenderConfig{
			Format:  "png",
			Quality: 90,
			Stroke:  0,
		},
		Suggest: SuggestConfig{
			Backend:       "none",
			URL:           "http://localhost:11434",
			Model:         "qwen2.5vl:7b",
			MinConfidence: 0.3,
			SendSize:      1024,
			SendQuality:   85,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads filename over the defaults when it exists, then applies
// environment overrides. Variables from a .env file in the working directory
// are loaded first without replacing ones already set.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			loaded, err := LoadFromFile(filename)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from LABELER_* environment variables.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("LABELER_TASKS_ROOT", &c.Task.TasksRoot)
	set("LABELER_SUGGEST_BACKEND", &c.Suggest.Backend)
	set("LABELER_SUGGEST_URL", &c.Suggest.URL)
	set("LABELER_SUGGEST_MODEL", &c.Suggest.Model)
	set("LABELER_LOG_LEVEL", &c.Log.Level)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Editor.HandleHalfWidth <= 0 {
		return fmt.Errorf("editor.handle_half_width must be positive")
	}

	if c.Editor.MinDrawDistance < 0 {
		return fmt.Errorf("editor.min_draw_distance cannot be negative")
	}

	switch c.Editor.UnknownPolicy {
	case "", "preserve", "reject":
	default:
		return fmt.Errorf("editor.unknown_policy must be preserve or reject, got %q", c.Editor.UnknownPolicy)
	}

	if c.Task.TasksRoot == "" {
		return fmt.Errorf("task.tasks_root cannot be empty")
	}

	if c.Task.ImagesDir == "" || c.Task.ClassesFile == "" {
		return fmt.Errorf("task.images_dir and task.classes_file cannot be empty")
	}

	if len(c.Task.ImageExtensions) == 0 {
		return fmt.Errorf("task.image_extensions cannot be empty")
	}

	switch strings.ToLower(c.Render.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("render.format must be png, jpg or webp, got %q", c.Render.Format)
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	if !contains(Backends, c.Suggest.Backend) {
		return fmt.Errorf("suggest.backend must be one of %s, got %q", strings.Join(Backends, ", "), c.Suggest.Backend)
	}

	if c.Suggest.MinConfidence < 0 || c.Suggest.MinConfidence > 1 {
		return fmt.Errorf("suggest.min_confidence must be between 0 and 1")
	}

	if c.Suggest.SendQuality < 1 || c.Suggest.SendQuality > 100 {
		return fmt.Errorf("suggest.send_quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

// ResultDir resolves the result directory. A relative path is taken next to
// the tasks root.
func (c *Config) ResultDir() string {
	if filepath.IsAbs(c.Task.ResultDir) {
		return c.Task.ResultDir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(c.Task.TasksRoot)), c.Task.ResultDir)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-labeler", "config.json")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
