package compare

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
)

func sig(instrument string, direction signaldomain.Direction, confidence float64) signaldomain.Signal {
	return signaldomain.Signal{
		Instrument: instrument,
		Direction:  direction,
		Confidence: confidence,
	}
}

func TestCompareAddedRemovedAndChanges(t *testing.T) {
	previous := []signaldomain.Signal{
		sig("HG", signaldomain.DirectionLong, 0.70),
	}
	current := []signaldomain.Signal{
		sig("HG", signaldomain.DirectionShort, 0.85),
		sig("ZS", signaldomain.DirectionLong, 0.60),
	}

	result := Compare(previous, current)

	assert.Equal(t, 1, result.Summary.PreviousCount)
	assert.Equal(t, 2, result.Summary.CurrentCount)
	assert.Equal(t, 1, result.Summary.AddedCount)
	assert.Equal(t, 0, result.Summary.RemovedCount)
	assert.Equal(t, 1, result.Summary.DirectionChangesCount)
	assert.Equal(t, 1, result.Summary.ConfidenceChangesCount)

	if assert.Len(t, result.AddedSignals, 1) {
		assert.Equal(t, "ZS", result.AddedSignals[0].Instrument)
	}
	assert.Empty(t, result.RemovedSignals)

	if assert.Len(t, result.DirectionChanges, 1) {
		change := result.DirectionChanges[0]
		assert.Equal(t, "HG", change.Instrument)
		assert.Equal(t, signaldomain.DirectionLong, change.PreviousDirection)
		assert.Equal(t, signaldomain.DirectionShort, change.CurrentDirection)
		assert.InDelta(t, 0.15, change.ConfidenceChange, 1e-9)
	}

	if assert.Len(t, result.ConfidenceChanges, 1) {
		change := result.ConfidenceChanges[0]
		assert.Equal(t, "HG", change.Instrument)
		assert.InDelta(t, 0.15, change.Change, 1e-9)
		assert.InDelta(t, 0.15/0.70*100, change.ChangePercent, 1e-9)
	}
}

func TestCompareThresholdIsExclusive(t *testing.T) {
	previous := []signaldomain.Signal{sig("CL", signaldomain.DirectionLong, 0.50)}
	current := []signaldomain.Signal{sig("CL", signaldomain.DirectionLong, 0.60)}

	result := Compare(previous, current)

	assert.Empty(t, result.ConfidenceChanges, "a change of exactly 0.10 must not be reported")
	assert.Equal(t, 0, result.Summary.ConfidenceChangesCount)
}

func TestCompareIdenticalRuns(t *testing.T) {
	signals := []signaldomain.Signal{
		sig("HG", signaldomain.DirectionLong, 0.70),
		sig("ZC", signaldomain.DirectionNeutral, 0.40),
	}

	result := Compare(signals, signals)

	assert.Empty(t, result.AddedSignals)
	assert.Empty(t, result.RemovedSignals)
	assert.Empty(t, result.DirectionChanges)
	assert.Empty(t, result.ConfidenceChanges)
	assert.Equal(t, 2, result.Summary.PreviousCount)
	assert.Equal(t, 2, result.Summary.CurrentCount)
}

func TestCompareTruncatesListsButNotCounts(t *testing.T) {
	var previous, current []signaldomain.Signal
	for i := 0; i < 8; i++ {
		previous = append(previous, sig(fmt.Sprintf("OLD%d", i), signaldomain.DirectionLong, 0.5))
		current = append(current, sig(fmt.Sprintf("NEW%d", i), signaldomain.DirectionShort, 0.5))
	}

	result := Compare(previous, current)

	assert.Len(t, result.AddedSignals, 5)
	assert.Len(t, result.RemovedSignals, 5)
	assert.Equal(t, 8, result.Summary.AddedCount)
	assert.Equal(t, 8, result.Summary.RemovedCount)
	// Insertion order is preserved for added/removed.
	assert.Equal(t, "NEW0", result.AddedSignals[0].Instrument)
	assert.Equal(t, "OLD0", result.RemovedSignals[0].Instrument)
}

func TestCompareConfidenceChangesRankedByMagnitude(t *testing.T) {
	previous := []signaldomain.Signal{
		sig("A", signaldomain.DirectionLong, 0.50),
		sig("B", signaldomain.DirectionLong, 0.50),
		sig("C", signaldomain.DirectionLong, 0.50),
		sig("D", signaldomain.DirectionLong, 0.50),
		sig("E", signaldomain.DirectionLong, 0.50),
		sig("F", signaldomain.DirectionLong, 0.50),
	}
	current := []signaldomain.Signal{
		sig("A", signaldomain.DirectionLong, 0.62),
		sig("B", signaldomain.DirectionLong, 0.95),
		sig("C", signaldomain.DirectionLong, 0.30),
		sig("D", signaldomain.DirectionLong, 0.75),
		sig("E", signaldomain.DirectionLong, 0.15),
		sig("F", signaldomain.DirectionLong, 0.80),
	}

	result := Compare(previous, current)

	assert.Equal(t, 6, result.Summary.ConfidenceChangesCount)
	if assert.Len(t, result.ConfidenceChanges, 5) {
		assert.Equal(t, "B", result.ConfidenceChanges[0].Instrument)
		assert.Equal(t, "E", result.ConfidenceChanges[1].Instrument)
		// A (+0.12) is the smallest mover and falls off the top five.
		for _, change := range result.ConfidenceChanges {
			assert.NotEqual(t, "A", change.Instrument)
		}
	}
}

func TestCompareEmptyPrevious(t *testing.T) {
	current := []signaldomain.Signal{sig("NG", signaldomain.DirectionShort, 0.66)}

	result := Compare(nil, current)

	assert.Equal(t, 1, result.Summary.AddedCount)
	assert.Equal(t, 0, result.Summary.RemovedCount)
	assert.Empty(t, result.DirectionChanges)
	assert.Empty(t, result.ConfidenceChanges)
}
