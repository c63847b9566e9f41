package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ncruces/zenity"

	"github.com/fpang/hair-diagnosis-helper/internal/workflow"
)

// maxCaptureBytes bounds a single captured photo or video.
const maxCaptureBytes = 100 << 20

// FilePicker returns a path chosen for slot, or "" if the user canceled.
type FilePicker func(slot string) (string, error)

// DialogPicker opens a native file dialog.
func DialogPicker(slot string) (string, error) {
	patterns := []string{"*.jpg", "*.jpeg", "*.png", "*.webp", "*.heic"}
	name := "Photos"
	if strings.HasSuffix(slot, "-video") {
		patterns = []string{"*.mp4", "*.mov", "*.webm"}
		name = "Videos"
	}
	path, err := zenity.SelectFile(
		zenity.Title("Select "+slot),
		zenity.FileFilters{{Name: name, Patterns: patterns}},
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", nil
	}
	return path, err
}

// LoadFile reads a capture from disk and detects its content type.
func LoadFile(path string) (workflow.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return workflow.File{}, err
	}
	if info.IsDir() {
		return workflow.File{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxCaptureBytes {
		return workflow.File{}, fmt.Errorf("%s is larger than %d MB", path, maxCaptureBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.File{}, err
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") && !strings.HasPrefix(mtype.String(), "video/") {
		return workflow.File{}, fmt.Errorf("%s is not an image or video (%s)", path, mtype.String())
	}
	return workflow.File{Name: filepath.Base(path), ContentType: mtype.String(), Data: data}, nil
}

// extensionFor returns a file extension for an image MIME type.
func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil {
		return m.Extension()
	}
	return ".png"
}
