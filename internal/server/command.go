package server

import "strings"

// Kind identifies a protocol command.
type Kind int

const (
	Unknown Kind = iota
	Index
	Auto
	Impl
	Decl
	Calls
	Quit
)

var keywords = map[string]Kind{
	"INDEX": Index,
	"AUTO":  Auto,
	"IMPL":  Impl,
	"DECL":  Decl,
	"CALLS": Calls,
	"QUIT":  Quit,
}

func (k Kind) String() string {
	for keyword, kind := range keywords {
		if kind == k {
			return keyword
		}
	}
	return "UNKNOWN"
}

// Command is one parsed request line.
type Command struct {
	Kind Kind
	Arg  string
}

// ParseCommand splits a line into its keyword and the single argument that
// follows the first space or tab. Keywords match exactly and are
// case-sensitive; anything else is Unknown. Trailing whitespace, including
// the line terminator, is dropped from the argument.
func ParseCommand(line string) Command {
	line = strings.TrimRight(line, "\r\n")

	keyword, arg := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		keyword, arg = line[:i], line[i+1:]
	}

	kind, ok := keywords[keyword]
	if !ok {
		return Command{Kind: Unknown}
	}
	return Command{Kind: kind, Arg: strings.TrimRight(arg, " \t\r\n")}
}
