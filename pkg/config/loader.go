package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadError wraps a failure of the underlying byte stream itself (not a
// validation problem with its contents).
type ReadError struct{ cause error }

func (e *ReadError) Error() string { return "config: read error: " + e.cause.Error() }
func (e *ReadError) Unwrap() error { return e.cause }

// FormatError reports a validation violation on one line of the config
// file. Line is 1-indexed.
type FormatError struct {
	Line   int
	Record string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("config: line %d (%q): %s", e.Line, e.Record, e.Reason)
}

// MissingError reports that the configuration file itself could not be
// opened.
type MissingError struct {
	Path  string
	cause error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config: cannot open %q: %v", e.Path, e.cause)
}
func (e *MissingError) Unwrap() error { return e.cause }

// LoadFile opens path and loads the Service List from it. A MissingError
// is returned if the file cannot be opened at all.
func LoadFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &MissingError{Path: path, cause: err}
	}
	defer f.Close()

	list, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return list, nil
}

// Load parses the line-oriented `PATH PROTOCOL PORT MODE` grammar from r
// into an ordered Service List. Blank and whitespace-only lines are
// ignored; there is no comment syntax. Keys (protocol, port) must be
// unique across the whole file.
func Load(r io.Reader) (List, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[Key]bool)
	var list List

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		d, err := parseRecord(line)
		if err != nil {
			return nil, &FormatError{Line: lineNo, Record: line, Reason: err.Error()}
		}

		key := d.Key()
		if seen[key] {
			return nil, &FormatError{
				Line:   lineNo,
				Record: line,
				Reason: fmt.Sprintf("duplicate (protocol, port) %s/%d", key.Protocol, key.Port),
			}
		}
		seen[key] = true

		list = append(list, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ReadError{cause: err}
	}

	return list, nil
}

func parseRecord(line string) (*Descriptor, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return nil, errors.Errorf("expected 4 fields, got %d", len(fields))
	}

	path, protoStr, portStr, modeStr := fields[0], fields[1], fields[2], fields[3]

	if path == "" || len(path) > maxPathLen {
		return nil, errors.Errorf("path must be 1-%d bytes", maxPathLen)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return nil, errors.New("path must not contain a NUL byte")
	}

	var proto Protocol
	switch protoStr {
	case string(TCP):
		proto = TCP
	case string(UDP):
		proto = UDP
	default:
		return nil, errors.Errorf("protocol must be %q or %q, got %q", TCP, UDP, protoStr)
	}

	var mode Mode
	switch modeStr {
	case string(Wait):
		mode = Wait
	case string(NoWait):
		mode = NoWait
	default:
		return nil, errors.Errorf("mode must be %q or %q, got %q", Wait, NoWait, modeStr)
	}

	if len(portStr) > 5 {
		return nil, errors.Errorf("port has at most 5 digits, got %q", portStr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Errorf("port must be a decimal integer, got %q", portStr)
	}
	if port < minPort || port > maxPort {
		return nil, errors.Errorf("port must be in [%d, %d], got %d", minPort, maxPort, port)
	}

	name := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		name = path[idx+1:]
	}

	return &Descriptor{
		Path:     path,
		Name:     name,
		Protocol: proto,
		Mode:     mode,
		Port:     port,
		Socket:   -1,
	}, nil
}
