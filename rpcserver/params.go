package rpcserver

import (
	"encoding/json"
	"fmt"

	"github.com/khadas/scriptbridge/core/fault"
)

// Params are the positional arguments of one RPC call. The scripting
// protocol sends them as a JSON array; each accessor converts one slot.
type Params []json.RawMessage

func (p Params) errAt(i int, want string, err error) error {
	return fmt.Errorf("param %d: want %s: %w (%v)", i, want, fault.ErrEncoding, err)
}

func (p Params) String(i int) (string, error) {
	if i >= len(p) {
		return "", fmt.Errorf("param %d: missing: %w", i, fault.ErrEncoding)
	}
	var s string
	if err := json.Unmarshal(p[i], &s); err != nil {
		return "", p.errAt(i, "string", err)
	}
	return s, nil
}

func (p Params) Int(i int) (int, error) {
	if i >= len(p) {
		return 0, fmt.Errorf("param %d: missing: %w", i, fault.ErrEncoding)
	}
	var n int
	if err := json.Unmarshal(p[i], &n); err != nil {
		return 0, p.errAt(i, "int", err)
	}
	return n, nil
}

// IntDefault reads an int param, substituting def when the slot is absent
// or null.
func (p Params) IntDefault(i, def int) (int, error) {
	n, err := p.OptionalInt(i)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return def, nil
	}
	return *n, nil
}

// OptionalInt reads an int param that may be absent or null.
func (p Params) OptionalInt(i int) (*int, error) {
	if i >= len(p) || string(p[i]) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(p[i], &n); err != nil {
		return nil, p.errAt(i, "int", err)
	}
	return &n, nil
}

// Raw returns the undecoded JSON for params that the facade parses itself
// (e.g. scan result lists).
func (p Params) Raw(i int) (json.RawMessage, error) {
	if i >= len(p) {
		return nil, fmt.Errorf("param %d: missing: %w", i, fault.ErrEncoding)
	}
	return p[i], nil
}

func (p Params) Len() int { return len(p) }
