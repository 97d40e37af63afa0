package triage

import (
	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
)

// Button is the presentation of one label choice. The flags only affect
// emphasis; any button may be submitted.
type Button struct {
	Label     labels.Label
	Selected  bool
	Suggested bool
	NoSignal  bool
	Sentinel  bool
}

// ButtonsFor flags every label for batch. A label is suggested when one of
// its keywords occurs in the primary issue's description or when it has time
// logged in the batch. Non-sentinel labels with neither are flagged NoSignal.
func ButtonsFor(batch *labeling.IssueBatch, selected labels.Label, hl *highlight.Highlighter) []Button {
	var description string
	if primary, ok := batch.Primary(); ok {
		description = primary.Description
	}

	all := labels.All()
	buttons := make([]Button, 0, len(all))
	for _, l := range all {
		b := Button{
			Label:    l,
			Selected: l == selected,
			Sentinel: l.IsSentinel(),
		}
		if hl != nil && hl.IsHighlighted(l, description) {
			b.Suggested = true
		}
		if batch.HasHours(l) {
			b.Suggested = true
		}
		b.NoSignal = !b.Suggested && !b.Sentinel
		buttons = append(buttons, b)
	}
	return buttons
}
