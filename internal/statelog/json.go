package statelog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// JSON serializes the log as a JSON array of entries.
func (l *Log) JSON() (string, error) {
	data, err := encodeEntries(l.Entries())
	if err != nil {
		return "", fmt.Errorf("encode state log: %w", err)
	}
	return string(data), nil
}

// Parse decodes a log from the bulk JSON form produced by JSON.
// A double-encoded array (a JSON string holding the array text) is also
// accepted.
func Parse(text string) (*Log, error) {
	entries, err := DecodeEntries([]byte(text))
	if err != nil {
		return nil, err
	}
	return &Log{entries: entries}, nil
}

// DecodeEntries decodes the bulk form into entries.
func DecodeEntries(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, malformed("empty input", nil)
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, malformed("decode double-encoded log", err)
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) > 0 && data[0] == '"' {
			return nil, malformed("log encoded more than twice", nil)
		}
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed("decode log array", err)
	}
	entries := make([]Entry, 0, len(raw))
	for i, e := range raw {
		if e.Op == "" {
			return nil, malformed(fmt.Sprintf("entry %d has no op", i), nil)
		}
		entries = append(entries, NewEntry(e.Op, e.Args))
	}
	return entries, nil
}

// EncodeEntry returns the single-line JSON form of e, without a trailing
// newline. This is the record format of the append-only stores.
func EncodeEntry(e Entry) ([]byte, error) {
	return encodeJSON(NewEntry(e.Op, e.Args))
}

// DecodeEntry decodes one line of the append-only form.
func DecodeEntry(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, malformed("decode entry", err)
	}
	if e.Op == "" {
		return Entry{}, malformed("entry has no op", nil)
	}
	return NewEntry(e.Op, e.Args), nil
}

// EncodeEntries returns the bulk JSON array form of entries.
func EncodeEntries(entries []Entry) ([]byte, error) {
	return encodeEntries(entries)
}

func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		normalized[i] = NewEntry(e.Op, e.Args)
	}
	return encodeJSON(normalized)
}

// encodeJSON marshals without HTML escaping so file contents holding
// <, > or & stay readable on disk.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseLines reads the append-only form: one JSON entry per line.
//
// A crash during an append can leave the final line unterminated and
// truncated. Such a tail is dropped. A corrupt line anywhere else is
// reported as ErrMalformed.
func ParseLines(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	var entries []Entry
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read state log line %d: %w", lineNo, err)
		}
		terminated := len(line) > 0 && line[len(line)-1] == '\n'
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			e, decErr := DecodeEntry(trimmed)
			switch {
			case decErr == nil:
				entries = append(entries, e)
			case !terminated:
				slog.Warn("dropping truncated state log tail", "line", lineNo, "error", decErr)
			default:
				return nil, fmt.Errorf("line %d: %w", lineNo, decErr)
			}
		}
		if err != nil {
			return entries, nil
		}
	}
}

// LinesToJSON converts the append-only form into the bulk JSON array form.
func LinesToJSON(r io.Reader) (string, error) {
	entries, err := ParseLines(r)
	if err != nil {
		return "", err
	}
	data, err := encodeEntries(entries)
	if err != nil {
		return "", fmt.Errorf("encode state log: %w", err)
	}
	return string(data), nil
}
