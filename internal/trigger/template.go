package trigger

import (
	"errors"
	"strings"
)

// Placeholder tokens substituted into each argument of a command template
const (
	OldFilename = "OLD_FILENAME"
	NewFilename = "NEW_FILENAME"
)

var (
	// ErrEmptyTemplate is returned when a template has no arguments
	ErrEmptyTemplate = errors.New("command template is empty")

	// ErrUnterminatedQuote is returned when a quote is not closed
	ErrUnterminatedQuote = errors.New("unterminated quote in command template")
)

// SplitTemplate splits a command template into an argument vector.
// Whitespace separates arguments, single and double quotes group them, and a
// backslash outside single quotes escapes the next character.
func SplitTemplate(template string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range template {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, ErrEmptyTemplate
	}
	return args, nil
}

// Substitute replaces the placeholders in every argument
func Substitute(args []string, oldPath, newPath string) []string {
	replacer := strings.NewReplacer(OldFilename, oldPath, NewFilename, newPath)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}
