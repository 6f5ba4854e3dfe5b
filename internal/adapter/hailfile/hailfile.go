// Package hailfile re-ingests sessions already written in the canonical
// JSONL form.
package hailfile

import (
	"bytes"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

// Parse decodes a canonical session and hands its events back unchanged.
// Recorded stats are dropped; the pipeline recomputes them.
func Parse(src adapter.Source) (adapter.Result, error) {
	session, err := hail.ReadJSONL(bytes.NewReader(src.Data))
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindHAIL, src, err)
	}

	b := adapter.NewBuilder(adapter.KindHAIL, src, session.Version)
	for _, event := range session.Events {
		b.Emit(string(event.Kind()), event)
	}

	res, err := b.Result(adapter.Result{
		SessionID: session.SessionID,
		Agent:     session.Agent,
		Context:   session.Context,
	})
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindHAIL, src, err)
	}
	return res, nil
}
