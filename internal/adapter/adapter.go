// Package adapter defines the per-OS Input Adapter contract of spec.md
// §4.6: a uniform producer of (OsCode, direction, ts_ms) tuples, one
// implementation per supported platform.
package adapter

import (
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/oscode"
)

// RawEvent is one physical key transition as reported by the adapter,
// already translated to the engine's OsCode space and timestamped at the
// earliest safe point.
type RawEvent struct {
	Code oscode.Code
	Dir  engine.Direction
	TsMs int64
}

// Adapter is the uniform producer contract every platform implements.
// Open must stamp monotonic timestamps and translate native codes to
// oscode.Code before publishing to the channel Events returns. Close must
// be safe to call even if Open failed or was never called.
type Adapter interface {
	Open() error
	Events() <-chan RawEvent
	Close() error
}

// Filter filters an Adapter's output down to codes present in defsrc,
// honoring process-unmapped-keys (spec.md §4.6 "drop events for OsCodes
// outside defsrc iff process-unmapped-keys = false").
type Filter struct {
	allowed             map[oscode.Code]struct{}
	processUnmappedKeys bool
}

// NewFilter builds a Filter from a defsrc list.
func NewFilter(defsrc []oscode.Code, processUnmappedKeys bool) *Filter {
	allowed := make(map[oscode.Code]struct{}, len(defsrc))
	for _, c := range defsrc {
		allowed[c] = struct{}{}
	}
	return &Filter{allowed: allowed, processUnmappedKeys: processUnmappedKeys}
}

// Allow reports whether an event for code should be forwarded to the orchestrator.
func (f *Filter) Allow(code oscode.Code) bool {
	if f.processUnmappedKeys {
		return true
	}
	_, ok := f.allowed[code]
	return ok
}
