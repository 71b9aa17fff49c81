package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./mail_output"

// File writes each message as an .eml file in a directory instead of
// delivering it. Intended for development.
type File struct {
	outputDir string
}

// NewFile creates a File transport writing to dir, or ./mail_output when
// dir is empty.
func NewFile(dir string) *File {
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) GetName() string { return TypeFile }

// Send writes the raw message to <timestamp>_<message-id>.eml.
func (f *File) Send(_ context.Context, env *Envelope) (*Receipt, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, ClassifyError(TypeFile, fmt.Errorf("file: create output dir: %w", err))
	}

	ts := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.eml", ts, safeFilename(env.MessageID))
	path := filepath.Join(f.outputDir, filename)

	if err := os.WriteFile(path, env.Raw, 0o640); err != nil {
		return nil, ClassifyError(TypeFile, fmt.Errorf("file: write %s: %w", path, err))
	}

	return &Receipt{
		MessageID: env.MessageID,
		Accepted:  append([]string(nil), env.Recipients...),
		Response:  "written to " + path,
	}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer("<", "", ">", "", "/", "_", "\\", "_", "@", "_at_")

func safeFilename(messageID string) string {
	return filenameReplacer.Replace(messageID)
}
