package distro

import "fmt"

// ReadError reports an unreadable or malformed os-release file.
type ReadError struct {
	Path string
	Err  error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read os-release %s: %v", e.Path, e.Err)
}

func (e ReadError) Unwrap() error {
	return e.Err
}
