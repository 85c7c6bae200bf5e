package metadata

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Site is the source location an allocator entry point was called from. It is used purely
// for diagnostic messages.
type Site struct {
	File string
	Line int
}

// UnknownSite is used when the caller does not supply a location
var UnknownSite = Site{File: "?", Line: 0}

// CallerSite returns the Site of the function skip frames above the caller of CallerSite. Only the
// base name of the source file is kept.
func CallerSite(skip int) Site {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return UnknownSite
	}

	return Site{File: filepath.Base(file), Line: line}
}

func (s Site) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}
