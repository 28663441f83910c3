// Package compare diffs two ordered signal collections into added, removed,
// direction-changed and confidence-changed buckets.
package compare

import (
	"math"
	"sort"

	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
)

// confidenceThreshold is exclusive: a change of exactly 0.10 is not reported.
const confidenceThreshold = 0.1

const maxListed = 5

type DirectionChange struct {
	Instrument        string                 `json:"instrument"`
	PreviousDirection signaldomain.Direction `json:"previous_direction"`
	CurrentDirection  signaldomain.Direction `json:"current_direction"`
	ConfidenceChange  float64                `json:"confidence_change"`
}

type ConfidenceChange struct {
	Instrument    string  `json:"instrument"`
	Previous      float64 `json:"previous"`
	Current       float64 `json:"current"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

type Summary struct {
	PreviousCount          int `json:"previous_count"`
	CurrentCount           int `json:"current_count"`
	AddedCount             int `json:"added_count"`
	RemovedCount           int `json:"removed_count"`
	DirectionChangesCount  int `json:"direction_changes_count"`
	ConfidenceChangesCount int `json:"confidence_changes_count"`
}

type Result struct {
	AddedSignals      []signaldomain.Signal `json:"added_signals"`
	RemovedSignals    []signaldomain.Signal `json:"removed_signals"`
	DirectionChanges  []DirectionChange     `json:"direction_changes"`
	ConfidenceChanges []ConfidenceChange    `json:"confidence_changes"`
	Summary           Summary               `json:"summary"`
}

// Compare classifies the differences between a previous and a current run.
// Matching is by instrument via linear scan; signal counts are small enough
// that quadratic matching is fine.
func Compare(previous, current []signaldomain.Signal) Result {
	prevInstruments := instrumentSet(previous)
	curInstruments := instrumentSet(current)

	var added []signaldomain.Signal
	for _, sig := range current {
		if !prevInstruments[sig.Instrument] {
			added = append(added, sig)
		}
	}

	var removed []signaldomain.Signal
	for _, sig := range previous {
		if !curInstruments[sig.Instrument] {
			removed = append(removed, sig)
		}
	}

	var directionChanges []DirectionChange
	var confidenceChanges []ConfidenceChange
	for _, cur := range current {
		prev := findByInstrument(previous, cur.Instrument)
		if prev == nil {
			continue
		}
		change := cur.Confidence - prev.Confidence
		if cur.Direction != prev.Direction {
			directionChanges = append(directionChanges, DirectionChange{
				Instrument:        cur.Instrument,
				PreviousDirection: prev.Direction,
				CurrentDirection:  cur.Direction,
				ConfidenceChange:  change,
			})
		}
		if math.Abs(change) > confidenceThreshold {
			entry := ConfidenceChange{
				Instrument: cur.Instrument,
				Previous:   prev.Confidence,
				Current:    cur.Confidence,
				Change:     change,
			}
			if prev.Confidence != 0 {
				entry.ChangePercent = change / prev.Confidence * 100
			}
			confidenceChanges = append(confidenceChanges, entry)
		}
	}

	// Counts reflect the full lists; the listed entries are truncated below.
	summary := Summary{
		PreviousCount:          len(previous),
		CurrentCount:           len(current),
		AddedCount:             len(added),
		RemovedCount:           len(removed),
		DirectionChangesCount:  len(directionChanges),
		ConfidenceChangesCount: len(confidenceChanges),
	}

	sort.SliceStable(confidenceChanges, func(i, j int) bool {
		return math.Abs(confidenceChanges[i].Change) > math.Abs(confidenceChanges[j].Change)
	})

	return Result{
		AddedSignals:      truncate(added),
		RemovedSignals:    truncate(removed),
		DirectionChanges:  directionChanges,
		ConfidenceChanges: truncate(confidenceChanges),
		Summary:           summary,
	}
}

func instrumentSet(signals []signaldomain.Signal) map[string]bool {
	set := make(map[string]bool, len(signals))
	for _, sig := range signals {
		set[sig.Instrument] = true
	}
	return set
}

func findByInstrument(signals []signaldomain.Signal, instrument string) *signaldomain.Signal {
	for i := range signals {
		if signals[i].Instrument == instrument {
			return &signals[i]
		}
	}
	return nil
}

func truncate[T any](list []T) []T {
	if len(list) > maxListed {
		return list[:maxListed]
	}
	return list
}
