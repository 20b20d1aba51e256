// Package imagelabeler is a bounding-box annotation engine for building object
// detection datasets.
//
// A host UI (or the CLI in cmd/image-labeler) feeds pointer events into an
// editor.Editor, which maps them through a fit-to-viewport transform, mutates
// the current image's boxes and persists them as YOLO label files next to the
// image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		imagelabeler "github.com/menta2k/image-labeler"
//		"github.com/menta2k/image-labeler/pkg/interaction"
//		"github.com/menta2k/image-labeler/pkg/types"
//	)
//
//	func main() {
//		cfg, err := imagelabeler.LoadConfig("config.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//		ed, err := imagelabeler.Open(cfg, "cars", nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer ed.Close()
//
//		ed.Resize(1280, 720)
//		ed.PointerDown(interaction.Primary, types.Pt(100, 100))
//		ed.PointerMove(types.Pt(300, 240))
//		ed.PointerUp(types.Pt(300, 240))
//	}
//
// The package consists of these components:
//
//  1. Transform (pkg/transform): image <-> display coordinate mapping
//  2. Annotation (pkg/annotation): the per-image box set and its invariants
//  3. Classes (pkg/classes): the class registry and per-class colors
//  4. Interaction (pkg/interaction): the draw/move/resize/delete gesture machine
//  5. Labels (pkg/labels): the YOLO text codec
//  6. Stats (pkg/stats): per-image and dataset class counts
//
// Suggestions from a vision model (pkg/detection with pkg/ollama or
// pkg/llamacpp) or from the offline saliency detector (pkg/vision) can
// pre-populate an image before manual correction.
package imagelabeler

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/pkg/detection"
	"github.com/menta2k/image-labeler/pkg/editor"
	"github.com/menta2k/image-labeler/pkg/interaction"
	"github.com/menta2k/image-labeler/pkg/labels"
	"github.com/menta2k/image-labeler/pkg/llamacpp"
	"github.com/menta2k/image-labeler/pkg/ollama"
	"github.com/menta2k/image-labeler/pkg/render"
	"github.com/menta2k/image-labeler/pkg/task"
	"github.com/menta2k/image-labeler/pkg/vision"
)

// Version of the image labeler library
const Version = "1.0.0"

// Config is the labeler configuration.
type Config = config.Config

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads path (if it exists) and environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// EditorOptions converts cfg into editor options.
func EditorOptions(cfg *Config, logger *slog.Logger) (editor.Options, error) {
	policy, err := labels.ParsePolicy(cfg.Editor.UnknownPolicy)
	if err != nil {
		return editor.Options{}, err
	}
	return editor.Options{
		Layout: task.Layout{
			Root:        cfg.Task.TasksRoot,
			ImagesDir:   cfg.Task.ImagesDir,
			ClassesFile: cfg.Task.ClassesFile,
			ResultDir:   cfg.ResultDir(),
			Extensions:  cfg.Task.ImageExtensions,
		},
		Interaction: interaction.Config{
			HandleHalfWidth: cfg.Editor.HandleHalfWidth,
			MinDrawDistance: cfg.Editor.MinDrawDistance,
		},
		UnknownLabel:  cfg.Editor.UnknownLabel,
		UnknownPolicy: policy,
		MinConfidence: cfg.Suggest.MinConfidence,
		Logger:        logger,
	}, nil
}

// Open creates an editor for cfg and opens taskName. An empty taskName opens
// the first task under the tasks root.
func Open(cfg *Config, taskName string, logger *slog.Logger) (*editor.Editor, error) {
	opts, err := EditorOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	ed := editor.New(opts)

	if taskName == "" {
		names, err := ed.Tasks()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: no tasks in %s", task.ErrMissingDirectory, cfg.Task.TasksRoot)
		}
		taskName = names[0]
	}

	if err := ed.OpenTask(taskName); err != nil {
		return nil, err
	}
	return ed, nil
}

// NewSuggester builds the suggestion backend selected by cfg. It returns nil
// when the backend is "none".
func NewSuggester(cfg *Config) (detection.Suggester, error) {
	s := cfg.Suggest
	switch s.Backend {
	case "", "none":
		return nil, nil
	case "saliency":
		return vision.New(), nil
	case "ollama":
		c, err := ollama.NewClient(s.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return detection.NewModelSuggester(c, modelConfig(s)), nil
	case "llamacpp":
		c, err := llamacpp.NewClient(s.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return detection.NewModelSuggester(c, modelConfig(s)), nil
	}
	return nil, fmt.Errorf("unknown suggest backend %q", s.Backend)
}

func modelConfig(s config.SuggestConfig) detection.ModelConfig {
	return detection.ModelConfig{
		Model:       s.Model,
		SendSize:    s.SendSize,
		SendQuality: s.SendQuality,
	}
}

// RenderOptions returns overlay options with the configured stroke.
func RenderOptions(cfg *Config) render.Options {
	opts := render.DefaultOptions()
	opts.Stroke = cfg.Render.Stroke
	opts.HandleHalfWidth = int(math.Round(cfg.Editor.HandleHalfWidth))
	return opts
}

// NewLogger builds a JSON or text slog logger writing to w.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
