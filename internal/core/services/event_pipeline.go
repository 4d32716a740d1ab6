package services

import (
	"sort"
	"time"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

const defaultBufferMinutes = 60

// eventPipeline implements ports.EventPipeline: merges decorated
// reservations with external events into one time-ordered stream and
// flags conflicts advisory-only — it never mutates an event.
type eventPipeline struct{}

// NewEventPipeline constructs an event pipeline.
func NewEventPipeline() ports.EventPipeline {
	return &eventPipeline{}
}

// Merge combines and sorts both streams. bufferMinutes <= 0 falls back to the
// default of 60.
func (p *eventPipeline) Merge(reservationEvents []domain.DecoratedEvent, externalEvents []domain.ExternalEvent, bufferMinutes int) ports.PipelineResult {
	if bufferMinutes <= 0 {
		bufferMinutes = defaultBufferMinutes
	}
	buffer := time.Duration(bufferMinutes) * time.Minute

	events := make([]domain.DecoratedEvent, 0, len(reservationEvents)+len(externalEvents))
	events = append(events, reservationEvents...)
	for i := range externalEvents {
		ev := externalEvents[i]
		events = append(events, domain.DecoratedEvent{ExternalEvent: &ev})
	}

	sort.Slice(events, func(i, j int) bool {
		ti, tj := events[i].StartUTC(), events[j].StartUTC()
		if ti.Equal(tj) {
			return events[i].ID() < events[j].ID()
		}
		return ti.Before(tj)
	})

	conflicts := p.detectConflicts(events, buffer)

	return ports.PipelineResult{Events: events, Conflicts: conflicts}
}

// detectConflicts flags every pair of events whose ranges overlap or whose
// gap is under buffer. Priority only orders the advisories, never
// drops an event.
func (p *eventPipeline) detectConflicts(events []domain.DecoratedEvent, buffer time.Duration) []domain.Conflict {
	var conflicts []domain.Conflict

	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i].TimeRange(), events[j].TimeRange()
			// events are sorted by start; once b starts later than a's end
			// plus the buffer, no further j can conflict with i.
			if b.StartUTC.Sub(a.EndUTC) >= buffer {
				break
			}
			if a.Overlaps(b) || a.Gap(b) < buffer {
				overlap := time.Duration(0)
				if a.Overlaps(b) {
					overlap = overlapDuration(a, b)
				}
				conflicts = append(conflicts, domain.Conflict{A: events[i], B: events[j], Overlap: overlap})
			}
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return priorityRank(conflicts[i]) > priorityRank(conflicts[j])
	})

	return conflicts
}

func overlapDuration(a, b domain.TimeRange) time.Duration {
	start := a.StartUTC
	if b.StartUTC.After(start) {
		start = b.StartUTC
	}
	end := a.EndUTC
	if b.EndUTC.Before(end) {
		end = b.EndUTC
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// priorityRank orders conflict advisories in operator-facing output only
//; it never causes an event to be dropped.
func priorityRank(c domain.Conflict) int {
	rank := func(d domain.DecoratedEvent) int {
		if d.ExternalEvent == nil {
			return priorityValue(domain.PriorityNormal)
		}
		return priorityValue(d.ExternalEvent.Priority)
	}
	ra, rb := rank(c.A), rank(c.B)
	if ra > rb {
		return ra
	}
	return rb
}

func priorityValue(p domain.Priority) int {
	switch p {
	case domain.PriorityCritical:
		return 3
	case domain.PriorityHigh:
		return 2
	case domain.PriorityNormal:
		return 1
	case domain.PriorityLow:
		return 0
	default:
		return 1
	}
}
