// Package schema validates persisted state logs against a CUE schema.
//
// The schema checks the shape of every entry: registered ops must carry
// exactly their named string arguments, fs.upload refs must be content
// addresses, and unknown ops must at least be well-formed "namespace.verb"
// names.
package schema

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/sandboxx/internal/statelog"
)

//go:embed statelog.cue
var schemaCUE string

// ValidationError locates a schema violation.
type ValidationError struct {
	// Line is the 1-based line for the line form, or the 1-based entry
	// index for the bulk form. Zero means the document as a whole.
	Line    int
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("entry %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Is makes every ValidationError match statelog.ErrMalformed.
func (e *ValidationError) Is(target error) bool {
	return target == statelog.ErrMalformed || target == statelog.ErrState
}

// compiled holds the CUE context and definitions. A cue.Context is not
// safe for concurrent use, so validation holds mu.
type compiled struct {
	mu    sync.Mutex
	ctx   *cue.Context
	entry cue.Value
	log   cue.Value
}

var (
	schemaOnce sync.Once
	schema     *compiled
	schemaErr  error
)

func load() (*compiled, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaCUE, cue.Filename("statelog.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile state log schema: %w", err)
			return
		}
		schema = &compiled{
			ctx:   ctx,
			entry: v.LookupPath(cue.ParsePath("#Entry")),
			log:   v.LookupPath(cue.ParsePath("#Log")),
		}
	})
	return schema, schemaErr
}

// ValidateJSON validates the bulk form: a JSON array of entries, or that
// array encoded once more as a JSON string. The array is checked against
// #Log as a whole; on failure the first invalid entry is reported.
func ValidateJSON(data []byte) error {
	s, err := load()
	if err != nil {
		return err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return &ValidationError{Message: "invalid JSON string: " + err.Error()}
		}
		data = []byte(inner)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return &ValidationError{Message: "expected a JSON array of entries: " + err.Error()}
	}
	logErr := s.validate(s.log, data)
	if logErr == nil {
		return nil
	}
	// Locate the first offending entry for the report.
	for i, raw := range entries {
		if err := s.validate(s.entry, raw); err != nil {
			err.Line = i + 1
			return err
		}
	}
	return logErr
}

// ValidateLines validates the append-only form, one entry per line. Blank
// lines are ignored. Unlike loading, validation also reports a truncated
// final line.
func ValidateLines(data []byte) error {
	s, err := load()
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if err := s.validate(s.entry, text); err != nil {
			err.Line = line
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read state log lines: %w", err)
	}
	return nil
}

// ValidateLog validates an in-memory log by its serialized form.
func ValidateLog(log *statelog.Log) error {
	text, err := log.JSON()
	if err != nil {
		return err
	}
	return ValidateJSON([]byte(text))
}

func (s *compiled) validate(def cue.Value, raw []byte) *ValidationError {
	expr, err := cuejson.Extract("statelog.json", raw)
	if err != nil {
		return &ValidationError{Message: "invalid JSON: " + firstMessage(err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := def.Unify(s.ctx.BuildExpr(expr))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

// toValidationError keeps the first CUE error and its position.
func toValidationError(err error) *ValidationError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	ve := &ValidationError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ve.Pos = positions[0]
	}
	return ve
}

func firstMessage(err error) string {
	if errs := errors.Errors(err); len(errs) > 0 {
		return errs[0].Error()
	}
	return err.Error()
}
