// Package events provides the custody journal: engines emit events for
// external indexing; core correctness never depends on them.
package events

import "token-custody-lab/internal/domain"

// Emitter receives custody events as they happen.
type Emitter interface {
	Emit(evt domain.Event)
}

// NoopEmitter discards all events. Engines default to it so tests that
// do not care about the journal stay quiet.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(domain.Event) {}
