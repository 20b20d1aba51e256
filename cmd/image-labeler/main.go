package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/editor"
	"github.com/menta2k/image-labeler/pkg/imageio"
)

const usage = `usage: image-labeler [flags] <command> [args]

commands:
  tasks                 list tasks under the tasks root
  classes               list the classes of a task with their colors
  stats                 print annotation statistics
  render                write image -image N with its boxes drawn to -out
  export                move labeled images of all tasks to the result directory
  suggest               pre-annotate image -image N with the configured backend
  replay                feed the pointer events in -events into image -image N
  set-classes a,b,c     replace the class list of a task

flags:
`

var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// run executes one command. Edits made before a failure are still saved.
func run(args []string, stdout, stderr io.Writer) (err error) {
	var configPath, tasksRoot, taskName string
	var imageNum int
	var out, eventsPath string
	var viewW, viewH float64
	var backend, url, model string

	fs := flag.NewFlagSet("image-labeler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", config.GetConfigPath(), "config file (JSON); missing file means defaults")
	fs.StringVar(&tasksRoot, "tasks", "", "tasks root directory (overrides config)")
	fs.StringVar(&taskName, "task", "", "task name (default: first task)")
	fs.IntVar(&imageNum, "image", 1, "image number, starting at 1")
	fs.StringVar(&out, "out", "", "output file for render (default: <image>_annotated.<format> in the current directory)")
	fs.StringVar(&eventsPath, "events", "", "event script for replay")
	fs.Float64Var(&viewW, "width", 0, "viewport width for render and replay (default: image width)")
	fs.Float64Var(&viewH, "height", 0, "viewport height for render and replay (default: image height)")
	fs.StringVar(&backend, "backend", "", "suggestion backend: saliency|ollama|llamacpp (overrides config)")
	fs.StringVar(&url, "url", "", "suggestion server URL (overrides config)")
	fs.StringVar(&model, "model", "", "suggestion model name (overrides config)")

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if tasksRoot != "" {
		cfg.Task.TasksRoot = tasksRoot
	}
	if backend != "" {
		cfg.Suggest.Backend = backend
	}
	if url != "" {
		cfg.Suggest.URL = url
	}
	if model != "" {
		cfg.Suggest.Model = model
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := imagelabeler.NewLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "tasks" {
		opts, err := imagelabeler.EditorOptions(cfg, logger)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		names, err := editor.New(opts).Tasks()
		if err != nil {
			return fmt.Errorf("tasks: %w", err)
		}
		for _, n := range names {
			fmt.Fprintln(stdout, n)
		}
		return nil
	}

	ed, err := imagelabeler.Open(cfg, taskName, logger)
	if err != nil {
		return fmt.Errorf("open task: %w", err)
	}
	defer func() {
		if cerr := ed.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("save: %w", cerr))
		}
	}()

	openImage := func() error {
		if err := ed.Open(imageNum - 1); err != nil {
			return fmt.Errorf("open image %d: %w", imageNum, err)
		}
		w, h := ed.ImageSize()
		if viewW > 0 {
			w = viewW
		}
		if viewH > 0 {
			h = viewH
		}
		ed.Resize(w, h)
		return nil
	}

	switch cmd {
	case "classes":
		for _, name := range ed.Classes() {
			fmt.Fprintf(stdout, "%s\t%s\n", name, classes.Hex(ed.ColorFor(name)))
		}

	case "stats":
		if err := openImage(); err != nil {
			return err
		}
		s, err := ed.Stats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Fprintln(stdout, s.String())

	case "render":
		if err := openImage(); err != nil {
			return err
		}
		img, err := ed.Render(imagelabeler.RenderOptions(cfg))
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		if out == "" {
			out = utils.GenerateOutputFilename(ed.ImagePath(), ".", "", "_annotated", cfg.Render.Format)
		}
		if err := imageio.Save(img, out, cfg.Render.Format, cfg.Render.Quality, cfg.Render.Lossless); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		log.Printf("wrote %s", out)

	case "export":
		exported, err := ed.Export()
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		for _, x := range exported {
			fmt.Fprintf(stdout, "%s\t%d images\n", x.Task, x.Images)
		}
		fmt.Fprintf(stdout, "results in %s\n", cfg.ResultDir())

	case "suggest":
		s, err := imagelabeler.NewSuggester(cfg)
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
		if s == nil {
			return fmt.Errorf("suggest: no backend configured (use -backend or suggest.backend)")
		}
		if err := openImage(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		n, err := ed.Suggest(ctx, s)
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
		fmt.Fprintf(stdout, "added %d boxes to %s\n", n, ed.ImagePath())

	case "replay":
		if eventsPath == "" {
			return fmt.Errorf("replay: -events is required")
		}
		f, err := os.Open(eventsPath)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		events, err := parseEvents(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if err := openImage(); err != nil {
			return err
		}
		if err := replay(ed, events, stdout); err != nil {
			return fmt.Errorf("replay: %w", err)
		}

	case "set-classes":
		if len(rest) != 1 {
			return fmt.Errorf("set-classes: expected one comma-separated list")
		}
		var names []string
		for _, n := range strings.Split(rest[0], ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		if err := ed.SetClasses(names); err != nil {
			return fmt.Errorf("set-classes: %w", err)
		}
		fmt.Fprintln(stdout, strings.Join(ed.Classes(), "\n"))

	default:
		fs.Usage()
		return errUsage
	}
	return nil
}
