package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Terminator ends every sentence on the wire.
const Terminator = "\r\n"

var ErrMalformed = errors.New("nmea: malformed sentence")

// Sentence is one decoded `$<talker><type>,f1,f2,...*HH` record.
type Sentence struct {
	// ID is the talker+type identifier, e.g. "GPGGA" or "PSEAD".
	ID string
	// Fields is the comma-split body including the identifier at index 0.
	Fields []string

	Checksum string
	// ChecksumOK reports whether Checksum matches the body. Decode does not
	// reject mismatches; callers that care must look at it.
	ChecksumOK bool
}

// Body returns the identifier and fields joined back with commas.
func (s Sentence) Body() string {
	return strings.Join(s.Fields, ",")
}

// Checksum returns the XOR of every byte in body as two uppercase hex digits.
func Checksum(body string) string {
	ck := byte(0)
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return fmt.Sprintf("%02X", ck)
}

// Encode renders body (no leading '$', no checksum) as `$<body>*<HH>\r\n`.
func Encode(body string) string {
	return "$" + body + "*" + Checksum(body) + Terminator
}

// Decode extracts the single `$...*HH` sentence contained in line.
func Decode(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	start := strings.IndexByte(line, '$')
	if start == -1 {
		return Sentence{}, fmt.Errorf("%w: missing '$'", ErrMalformed)
	}
	if strings.IndexByte(line[start+1:], '$') != -1 {
		return Sentence{}, fmt.Errorf("%w: more than one sentence", ErrMalformed)
	}
	star := strings.LastIndexByte(line, '*')
	if star < start {
		return Sentence{}, fmt.Errorf("%w: missing checksum", ErrMalformed)
	}
	body := line[start+1 : star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("%w: short checksum", ErrMalformed)
	}
	ck = strings.ToUpper(ck[:2])
	if _, err := strconv.ParseUint(ck, 16, 8); err != nil {
		return Sentence{}, fmt.Errorf("%w: bad checksum %q", ErrMalformed, ck)
	}

	fields := strings.Split(body, ",")
	if len(fields[0]) < 3 {
		return Sentence{}, fmt.Errorf("%w: short identifier %q", ErrMalformed, fields[0])
	}
	return Sentence{
		ID:         fields[0],
		Fields:     fields,
		Checksum:   ck,
		ChecksumOK: Checksum(body) == ck,
	}, nil
}

// FindFirstByPrefix splits a blob of CR-LF terminated sentences and returns the
// first one whose text starts with prefix (e.g. "$GPGGA").
func FindFirstByPrefix(blob, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	for _, msg := range strings.Split(blob, Terminator) {
		if strings.HasPrefix(msg, prefix) {
			return msg, true
		}
	}
	return "", false
}
