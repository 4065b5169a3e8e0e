package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fsoi/internal/fileutil"
)

// ErrUnsafeRoot is returned when a workspace root is empty or the filesystem root.
var ErrUnsafeRoot = errors.New("refusing to operate on an empty or filesystem root workspace")

// Layout names the directories of a workspace rooted at Root.
type Layout struct {
	Root        string
	Work        string
	Data        string
	Summary     string
	CompareFull string
	CompareRad  string
	CompareConv string
}

// NewLayout derives the workspace tree for root.
func NewLayout(root string) Layout {
	return Layout{
		Root:        root,
		Work:        filepath.Join(root, "work"),
		Data:        filepath.Join(root, "data"),
		Summary:     filepath.Join(root, "plots", "summary"),
		CompareFull: filepath.Join(root, "plots", "compare", "full"),
		CompareRad:  filepath.Join(root, "plots", "compare", "rad"),
		CompareConv: filepath.Join(root, "plots", "compare", "conv"),
	}
}

// SummaryDir is where summary plots for center are written.
func (l Layout) SummaryDir(center string) string {
	return filepath.Join(l.Summary, center)
}

// RequiredDirs lists every directory Prepare creates, parents first.
func (l Layout) RequiredDirs(centers []string) []string {
	dirs := []string{l.Root, l.Work, l.Data, l.Summary, l.CompareFull, l.CompareRad, l.CompareConv}
	for _, center := range centers {
		dirs = append(dirs, l.SummaryDir(center))
	}
	return dirs
}

// Prepare creates the workspace tree for centers. Existing directories are
// reused; any required path that exists as a non-directory fails the call.
func Prepare(root string, centers []string) (Layout, error) {
	if err := checkRoot(root); err != nil {
		return Layout{}, err
	}
	layout := NewLayout(root)
	for _, dir := range layout.RequiredDirs(centers) {
		if err := fileutil.EnsureDir(dir); err != nil {
			return layout, fmt.Errorf("prepare workspace: %w", err)
		}
	}
	return layout, nil
}

// Release removes the workspace tree. An absent root is a no-op.
func Release(root string) error {
	if err := checkRoot(root); err != nil {
		return err
	}
	if _, err := os.Lstat(root); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("release workspace: %w", err)
	}
	return nil
}

func checkRoot(root string) error {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return ErrUnsafeRoot
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	if abs == string(filepath.Separator) || abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return ErrUnsafeRoot
	}
	return nil
}
