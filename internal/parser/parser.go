// Package parser turns host command arguments into typed values.
//
// Host arguments arrive as strings, usually JSON, sometimes wrapped in an
// extra layer of quotes by the host's own serialiser.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kitchenlens/highlighter/internal/geo"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/util"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrMissingArgs is returned when a command has too few arguments.
var ErrMissingArgs = errors.New("missing arguments")

// Parser provides pure []string -> core value conversion.
type Parser struct {
	logger logging.Logger
}

// NewParser creates a parser that logs skipped input to logger.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logging.OrNop(logger)}
}

// ParseDetection parses one detection of the form
// ["code",[x,y,z],[qx,qy,qz,qw]]. The rotation is optional and defaults to
// identity. A numeric code is accepted and kept verbatim.
func (p *Parser) ParseDetection(arg string) (core.DetectionEvent, error) {
	var ev core.DetectionEvent

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(hostJSON(arg)), &parts); err != nil {
		return ev, fmt.Errorf("error unmarshalling detection: %w", err)
	}
	if len(parts) < 2 || len(parts) > 3 {
		return ev, fmt.Errorf("detection needs 2 or 3 elements, got %d", len(parts))
	}

	code, err := parseCode(parts[0])
	if err != nil {
		return ev, err
	}
	ev.Code = code

	var pos []float64
	if err := json.Unmarshal(parts[1], &pos); err != nil {
		return ev, fmt.Errorf("error parsing position: %w", err)
	}
	if ev.Pose.Position, err = geo.PositionFromSlice(pos); err != nil {
		return ev, fmt.Errorf("error parsing position: %w", err)
	}

	ev.Pose.Rotation = core.IdentityRotation
	if len(parts) == 3 {
		var rot []float64
		if err := json.Unmarshal(parts[2], &rot); err != nil {
			return ev, fmt.Errorf("error parsing rotation: %w", err)
		}
		if ev.Pose.Rotation, err = geo.RotationFromSlice(rot); err != nil {
			return ev, fmt.Errorf("error parsing rotation: %w", err)
		}
	}

	return ev, nil
}

// hostJSON strips the host's string wrapping. Unwrapped input is left alone
// so an empty JSON string ("") inside it survives.
func hostJSON(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return util.FixEscapeQuotes(s[1 : len(s)-1])
	}
	return s
}

func parseCode(raw json.RawMessage) (core.Code, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return core.Code(s), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("error parsing code: %w", err)
	}
	return core.Code(n.String()), nil
}

// ParseDetections parses a batch, one detection per argument. Malformed
// entries are logged and skipped so one bad marker never drops the batch.
func (p *Parser) ParseDetections(args []string) ([]core.DetectionEvent, int) {
	events := make([]core.DetectionEvent, 0, len(args))
	skipped := 0
	for i, arg := range args {
		ev, err := p.ParseDetection(arg)
		if err != nil {
			skipped++
			p.logger.Warn("skipping malformed detection", "index", i, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// ParseHighlight parses [name, show]. show defaults to true when omitted.
func (p *Parser) ParseHighlight(args []string) (string, bool, error) {
	if len(args) < 1 {
		return "", false, fmt.Errorf("highlight: %w", ErrMissingArgs)
	}
	name := util.Unquote(args[0])
	if name == "" {
		return "", false, errors.New("highlight: empty name")
	}
	if len(args) < 2 {
		return name, true, nil
	}
	show, err := util.ParseBool(args[1])
	if err != nil {
		return "", false, fmt.Errorf("highlight: %w", err)
	}
	return name, show, nil
}

// ParseKeyword parses the recognised phrase of a :VOICE: command.
func (p *Parser) ParseKeyword(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("voice: %w", ErrMissingArgs)
	}
	return util.Unquote(args[0]), nil
}
