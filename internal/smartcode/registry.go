// Package smartcode parses and versions the HERA classification codes attached
// to every entity, dynamic field, relationship and transaction.
//
// A well-formed code has exactly six dot-separated segments:
//
//	PREFIX.INDUSTRY.MODULE.TYPE.SUBTYPE.V<version>
//
// where every segment is upper-case alphanumeric (underscores allowed after
// the first character) and the version is a positive integer without leading
// zeros.
package smartcode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// Prefix is the namespace every code starts with.
const Prefix = "HERA"

const segmentCount = 6

// Components are the parsed segments of a code.
type Components struct {
	Prefix   string `json:"prefix"`
	Industry string `json:"industry"`
	Module   string `json:"module"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Version  int    `json:"version"`
}

// String renders the canonical token.
func (c Components) String() string {
	return fmt.Sprintf("%s.%s.%s.%s.%s.V%d", c.Prefix, c.Industry, c.Module, c.Type, c.Subtype, c.Version)
}

// Category returns the INDUSTRY.MODULE.TYPE triad.
func (c Components) Category() string {
	return c.Industry + "." + c.Module + "." + c.Type
}

// Result is the outcome of Validate.
type Result struct {
	Valid      bool        `json:"valid"`
	Components *Components `json:"components,omitempty"`
	Errors     []string    `json:"errors"`
}

// Validate checks code against the grammar and reports every problem found.
func Validate(code string) Result {
	comps, errs := parse(code)
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}
	return Result{Valid: true, Components: &comps, Errors: []string{}}
}

// Parse returns the components of a valid code or a MalformedCode error.
func Parse(code string) (Components, error) {
	comps, errs := parse(code)
	if len(errs) > 0 {
		return Components{}, &shared.Error{
			Kind:   shared.KindMalformedCode,
			Reason: fmt.Sprintf("smart code %q: %s", code, strings.Join(errs, "; ")),
		}
	}
	return comps, nil
}

// Check returns nil for a valid code, otherwise the MalformedCode error.
func Check(code string) error {
	_, err := Parse(code)
	return err
}

// NextVersion increments the trailing version by one.
func NextVersion(code string) (string, error) {
	comps, err := Parse(code)
	if err != nil {
		return "", err
	}
	if comps.Version == math.MaxInt {
		return "", &shared.Error{
			Kind:   shared.KindMalformedCode,
			Reason: fmt.Sprintf("smart code %q: version cannot be incremented", code),
		}
	}
	comps.Version++
	return comps.String(), nil
}

// Category returns the INDUSTRY.MODULE.TYPE triad of a valid code.
func Category(code string) (string, error) {
	comps, err := Parse(code)
	if err != nil {
		return "", err
	}
	return comps.Category(), nil
}

// HasPrefix reports whether code starts with the dotted prefix on a segment
// boundary, so "HERA.SALON.SVC" matches "HERA.SALON.SVC.TXN.SALE.V1" but not
// "HERA.SALON.SVCX.TXN.SALE.V1".
func HasPrefix(code, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(code, prefix) {
		return false
	}
	return len(code) == len(prefix) || code[len(prefix)] == '.'
}

func parse(code string) (Components, []string) {
	var errs []string
	if strings.TrimSpace(code) == "" {
		return Components{}, []string{"code is empty"}
	}
	parts := strings.Split(code, ".")
	if len(parts) != segmentCount {
		return Components{}, []string{fmt.Sprintf("expected %d segments, got %d", segmentCount, len(parts))}
	}
	if parts[0] != Prefix {
		errs = append(errs, fmt.Sprintf("prefix must be %s", Prefix))
	}
	names := []string{"industry", "module", "type", "subtype"}
	for i, name := range names {
		if !validSegment(parts[i+1]) {
			errs = append(errs, fmt.Sprintf("%s segment %q must be upper-case alphanumeric", name, parts[i+1]))
		}
	}
	version, verr := parseVersion(parts[5])
	if verr != "" {
		errs = append(errs, verr)
	}
	if len(errs) > 0 {
		return Components{}, errs
	}
	return Components{
		Prefix:   parts[0],
		Industry: parts[1],
		Module:   parts[2],
		Type:     parts[3],
		Subtype:  parts[4],
		Version:  version,
	}, nil
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseVersion(s string) (int, string) {
	if len(s) < 2 || s[0] != 'V' {
		return 0, fmt.Sprintf("version segment %q must be V followed by a positive integer", s)
	}
	digits := s[1:]
	if digits[0] == '0' {
		return 0, fmt.Sprintf("version segment %q must be a positive integer without leading zeros", s)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Sprintf("version segment %q must be V followed by a positive integer", s)
		}
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Sprintf("version segment %q out of range", s)
	}
	return v, ""
}
