package ai

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ParseError reports that a candidate could not be turned into JSON, even after repair.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Stage, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// RepairAndParse fixes the usual damage in model JSON (raw newlines in strings,
// trailing commas, unquoted keys, cut-off strings) and decodes the result.
// Call it only after a strict decode of the same candidate failed.
func RepairAndParse(candidate string) (any, error) {
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, &ParseError{Stage: "repair", Err: err}
	}
	var out any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, &ParseError{Stage: "repaired", Err: err}
	}
	return out, nil
}

func decodeStrict(stage, s string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, &ParseError{Stage: stage, Err: err}
	}
	return out, nil
}
