package parsers

import "errors"

// ErrUnsupportedExtension is returned for files whose extension is neither a
// source nor a header extension.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// FileClass tells whether function bodies found in a file count as
// declarations or implementations.
type FileClass int

const (
	ClassUnknown FileClass = iota
	ClassSource
	ClassHeader
)

func (c FileClass) String() string {
	switch c {
	case ClassSource:
		return "source"
	case ClassHeader:
		return "header"
	default:
		return "unknown"
	}
}
