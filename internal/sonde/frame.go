package sonde

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedFrame = errors.New("sonde: malformed telemetry frame")

// Frame is one telemetry line split into numeric values.
type Frame struct {
	Values []float64
	Raw    string
}

// ParseFrame splits line on whitespace. Every token must be numeric.
func ParseFrame(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Frame{}, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	f := Frame{Values: make([]float64, 0, len(fields)), Raw: line}
	for _, tok := range fields {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: token %q in %q", ErrMalformedFrame, tok, line)
		}
		f.Values = append(f.Values, v)
	}
	return f, nil
}

func notReady(resp string) bool {
	return strings.TrimSpace(resp) == "" || strings.Contains(resp, NotReadyMarker)
}
