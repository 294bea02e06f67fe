package media

import "fmt"

// DecodeError reports an unreadable or corrupt audio container.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a container no available codec can handle,
// including a missing codec binary.
type UnsupportedFormatError struct {
	Path   string
	Format string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("unsupported format %q for %s: %v", e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("unsupported format for %s: %v", e.Path, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// TagWriteError reports a failure to open or persist the tag of a file.
type TagWriteError struct {
	Path string
	Err  error
}

func (e *TagWriteError) Error() string {
	return fmt.Sprintf("write tags %s: %v", e.Path, e.Err)
}

func (e *TagWriteError) Unwrap() error { return e.Err }
