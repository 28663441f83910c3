// Package domain contains the trading-signal model shared by the rerun
// pipeline, the comparator and the query store.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Direction is the recommended exposure of a signal.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionNeutral:
		return true
	default:
		return false
	}
}

// Domain is the monitored activity sector of an area of interest.
type Domain string

const (
	DomainPort   Domain = "port"
	DomainFarm   Domain = "farm"
	DomainMine   Domain = "mine"
	DomainEnergy Domain = "energy"
)

func (d Domain) Valid() bool {
	switch d {
	case DomainPort, DomainFarm, DomainMine, DomainEnergy:
		return true
	default:
		return false
	}
}

// ParseDomain normalizes raw input to a Domain, falling back to port when
// the value is not one of the closed set.
func ParseDomain(raw string) Domain {
	d := Domain(strings.ToLower(strings.TrimSpace(raw)))
	if d.Valid() {
		return d
	}
	return DomainPort
}

// Signal is a generated trading recommendation. Signals are immutable after
// creation; a rerun produces a wholly new collection.
type Signal struct {
	ID         snowflake.ID `json:"id,omitempty" gorm:"primaryKey"`
	QueryID    snowflake.ID `json:"query_id,omitempty" gorm:"index:idx_signals_query"`
	UserID     string       `json:"user_id,omitempty" gorm:"type:text;index:idx_signals_user"`
	Instrument string       `json:"instrument" gorm:"type:text;not null"`
	Direction  Direction    `json:"direction" gorm:"type:text;not null"`
	Confidence float64      `json:"confidence" gorm:"not null"`
	Magnitude  float64      `json:"magnitude"`
	Thesis     string       `json:"thesis" gorm:"type:text"`
	AOIID      string       `json:"aoi_id" gorm:"column:aoi_id;type:text"`
	Domain     Domain       `json:"domain" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Signal) TableName() string { return "signals" }

var ErrEmptyResult = errors.New("empty_result")
