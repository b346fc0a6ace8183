package daemon

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/genricoloni/inkframe/internal/domain"
)

// Acknowledgment lines written back to the caller
const (
	ResponseOK             = "OK\n"
	ResponseUnknownCommand = "ERROR: Unknown command\n"
)

// ErrEmptyRequest is returned for blank input; the connection is closed without a reply
var ErrEmptyRequest = errors.New("empty request")

// ParseRequest parses "VERB [ARGUMENT]". The verb is case-insensitive and
// the argument is everything after the first run of whitespace.
func ParseRequest(line string) (domain.DaemonRequest, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.DaemonRequest{}, ErrEmptyRequest
	}

	word, arg := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		word, arg = line[:i], strings.TrimSpace(line[i:])
	}

	verb, ok := domain.ParseVerb(word)
	if !ok {
		return domain.DaemonRequest{}, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, word)
	}

	req := domain.DaemonRequest{Verb: verb}
	if verb == domain.VerbUpdate {
		req.Argument = arg
	}
	return req, nil
}

// FormatRequest renders a request in wire form
func FormatRequest(req domain.DaemonRequest) string {
	if req.Argument == "" {
		return string(req.Verb)
	}
	return string(req.Verb) + " " + req.Argument
}

// FormatResponse maps a request outcome to its acknowledgment line
func FormatResponse(err error) string {
	switch {
	case err == nil:
		return ResponseOK
	case errors.Is(err, domain.ErrUnknownCommand):
		return ResponseUnknownCommand
	default:
		reason := strings.Join(strings.Fields(err.Error()), " ")
		return "ERROR: " + reason + "\n"
	}
}
