// Package task knows the on-disk layout of labeling tasks:
//
//	<root>/<task>/classes.txt
//	<root>/<task>/images/<name>.<ext>
//	<root>/<task>/images/<name>.txt
//
// and moves finished work into the result directory.
package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/imageio"
	"github.com/menta2k/image-labeler/pkg/labels"
)

var (
	ErrMissingDirectory = errors.New("missing directory")
	ErrMissingFile      = errors.New("missing file")
	ErrClassesLocked    = errors.New("class list is locked by exported results")
)

// Layout names the directories and files of a task tree.
type Layout struct {
	Root        string   `json:"tasks_root"`
	ImagesDir   string   `json:"images_dir"`
	ClassesFile string   `json:"classes_file"`
	ResultDir   string   `json:"result_dir"`
	Extensions  []string `json:"image_extensions"`
}

// DefaultLayout returns the standard layout rooted at root with results in
// a Result directory next to it.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:        root,
		ImagesDir:   "images",
		ClassesFile: "classes.txt",
		ResultDir:   filepath.Join(filepath.Dir(filepath.Clean(root)), "Result"),
		Extensions:  imageio.DefaultExtensions,
	}
}

// List returns the task names under the root, sorted.
func (l Layout) List() ([]string, error) {
	names, err := utils.ListDirs(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDirectory, l.Root)
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return names, nil
}

// Task is one opened task directory.
type Task struct {
	Name        string
	Dir         string
	ImagesDir   string
	ClassesPath string
	Images      []string

	layout Layout
}

// Open resolves a task and lists its images.
func (l Layout) Open(name string) (*Task, error) {
	dir := filepath.Join(l.Root, name)
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("%w: task %s", ErrMissingDirectory, dir)
	}
	t := &Task{
		Name:        name,
		Dir:         dir,
		ImagesDir:   filepath.Join(dir, l.ImagesDir),
		ClassesPath: filepath.Join(dir, l.ClassesFile),
		layout:      l,
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the image list.
func (t *Task) Reload() error {
	if !utils.DirExists(t.ImagesDir) {
		return fmt.Errorf("%w: images %s", ErrMissingDirectory, t.ImagesDir)
	}
	images, err := utils.ListFiles(t.ImagesDir, t.layout.Extensions)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	t.Images = images
	return nil
}

// Image returns the path of image i, checking it still exists.
func (t *Task) Image(i int) (string, error) {
	if i < 0 || i >= len(t.Images) {
		return "", fmt.Errorf("image index %d out of range [0,%d)", i, len(t.Images))
	}
	p := t.Images[i]
	if !utils.FileExists(p) {
		return "", fmt.Errorf("%w: %s", ErrMissingFile, p)
	}
	return p, nil
}

// Classes loads the task's class list.
func (t *Task) Classes() (*classes.Registry, error) {
	return classes.Load(t.ClassesPath)
}

// SaveClasses rewrites the class list unless it is locked; current holds the
// names in use before the edit.
func (t *Task) SaveClasses(current []string, reg *classes.Registry) error {
	if !t.layout.CanEditClasses(current) {
		return ErrClassesLocked
	}
	return reg.Save(t.ClassesPath)
}

// CanEditClasses reports whether the class list may change. It may not once
// the result directory holds a sub-directory named after one of the classes.
func (l Layout) CanEditClasses(names []string) bool {
	if !utils.DirExists(l.ResultDir) {
		return true
	}
	for _, n := range names {
		if utils.DirExists(filepath.Join(l.ResultDir, n)) {
			return false
		}
	}
	return true
}

// Exported counts what Export moved for one task.
type Exported struct {
	Task   string `json:"task"`
	Images int    `json:"images"`
}

// Export moves every image that has a label file, together with that file,
// into <ResultDir>/<task>/. Label files without an image stay in place.
func (l Layout) Export(tasks []string) ([]Exported, error) {
	if err := utils.EnsureDir(l.ResultDir); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}

	var out []Exported
	for _, name := range tasks {
		src := filepath.Join(l.Root, name, l.ImagesDir)
		dst := filepath.Join(l.ResultDir, name)
		if err := utils.EnsureDir(dst); err != nil {
			return out, fmt.Errorf("failed to create %s: %w", dst, err)
		}

		txts, err := utils.ListFiles(src, []string{labels.Ext})
		if err != nil && !os.IsNotExist(err) {
			return out, fmt.Errorf("failed to list labels of %s: %w", name, err)
		}

		moved := 0
		for _, txt := range txts {
			img := l.imageFor(txt)
			if img == "" {
				continue
			}
			if err := utils.MoveFile(img, filepath.Join(dst, filepath.Base(img))); err != nil {
				return out, err
			}
			if err := utils.MoveFile(txt, filepath.Join(dst, filepath.Base(txt))); err != nil {
				return out, err
			}
			moved++
		}
		out = append(out, Exported{Task: name, Images: moved})
	}
	return out, nil
}

func (l Layout) imageFor(labelPath string) string {
	stem := strings.TrimSuffix(labelPath, filepath.Ext(labelPath))
	for _, ext := range l.Extensions {
		p := stem + "." + strings.TrimPrefix(ext, ".")
		if utils.FileExists(p) {
			return p
		}
	}
	return ""
}
