package intent

import (
	"io/fs"
	"os"
	"time"

	"github.com/always-cache/always-static/rfc9110"
)

// Output is a resolved variant: the Intent it was resolved for, the coding
// that matched, and the opened file with its metadata.
// It owns File; the caller must Close it.
type Output struct {
	Mode     Mode
	Encoding rfc9110.Coding
	// Path of the opened variant, i.e. the base path plus the coding suffix.
	Path       string
	Info       fs.FileInfo
	File       *os.File
	Range      *rfc9110.Range
	Conditions rfc9110.Conditions
}

// NewOutput builds the Output for a variant that was opened successfully.
func NewOutput(in Intent, enc rfc9110.Coding, path string, info fs.FileInfo, f *os.File) *Output {
	return &Output{
		Mode:       in.Mode,
		Encoding:   enc,
		Path:       path,
		Info:       info,
		File:       f,
		Range:      in.Range,
		Conditions: in.Conditions(),
	}
}

// Size is the length of the variant in bytes, which is what ranges refer to.
func (o *Output) Size() int64 {
	return o.Info.Size()
}

// LastModified is the modification time of the variant file.
func (o *Output) LastModified() time.Time {
	return o.Info.ModTime()
}

// IsDir reports whether the resolved path is a directory.
func (o *Output) IsDir() bool {
	return o.Info.IsDir()
}

// Close closes the file. It is safe to call on a nil Output.
func (o *Output) Close() error {
	if o == nil || o.File == nil {
		return nil
	}
	return o.File.Close()
}
