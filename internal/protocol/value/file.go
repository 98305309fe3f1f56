package value

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is an open file to be streamed to the peer.
type File struct {
	Name string
	Size int64
	f    *os.File
}

// OpenFile opens path for reading and captures its size.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("value: %s is not a regular file", path)
	}
	return &File{Name: filepath.Base(path), Size: info.Size(), f: f}, nil
}

// FromOSFile wraps an already open file. The caller keeps ownership.
func FromOSFile(f *os.File) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &File{Name: filepath.Base(f.Name()), Size: info.Size(), f: f}, nil
}

// Reader rewinds the file and returns it for streaming.
func (f *File) Reader() (io.Reader, error) {
	if f.f == nil {
		return nil, fmt.Errorf("value: file %q is not open", f.Name)
	}
	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f.f, nil
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}

// Header returns the inline (size, name) pair for the envelope.
func (f *File) Header() []any {
	return []any{f.Size, f.Name}
}

// Received describes a file written by the receive path.
type Received struct {
	Path string
	Size int64
}

// ParseFileHeader reads an inline (size, name) pair.
func ParseFileHeader(inline any) (int64, string, error) {
	pair, ok := inline.([]any)
	if !ok || len(pair) != 2 {
		return 0, "", fmt.Errorf("file header %v: %w", inline, errMalformedHeader)
	}
	size, ok := pair[0].(int64)
	if !ok || size < 0 {
		return 0, "", fmt.Errorf("file size %v: %w", pair[0], errMalformedHeader)
	}
	name, ok := pair[1].(string)
	if !ok {
		return 0, "", fmt.Errorf("file name %v: %w", pair[1], errMalformedHeader)
	}
	return size, name, nil
}
