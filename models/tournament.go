package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// InstanceState is the lifecycle state of a tournament instance (one bracket or division).
type InstanceState string

const (
	StatePending    InstanceState = "pending"
	StateInProgress InstanceState = "in_progress"
	StateComplete   InstanceState = "complete"
)

func (s InstanceState) Valid() bool {
	switch s {
	case StatePending, StateInProgress, StateComplete:
		return true
	}
	return false
}

// Format is the bracket format requested from the provider.
type Format string

const (
	FormatSingleElimination Format = "single_elimination"
	FormatDoubleElimination Format = "double_elimination"
	FormatRoundRobin        Format = "round_robin"
	FormatSwiss             Format = "swiss"
)

func (f Format) Valid() bool {
	switch f {
	case FormatSingleElimination, FormatDoubleElimination, FormatRoundRobin, FormatSwiss:
		return true
	}
	return false
}

// IsElimination reports whether a match loss can knock a participant out.
func (f Format) IsElimination() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}

const (
	DefaultCapacity = 16
	DefaultBestOf   = 5
)

// Instance is a local mapping of one provider tournament. The provider owns the bracket;
// this row owns the name, capacity counter and lifecycle state.
type Instance struct {
	ID                  int           `json:"id" db:"id"`
	Name                string        `json:"name" db:"name"`
	URL                 string        `json:"url" db:"url"`
	ExternalID          int64         `json:"external_id" db:"external_id"`
	State               InstanceState `json:"state" db:"state"`
	Capacity            int           `json:"capacity" db:"capacity"`
	ParticipantCount    int           `json:"participant_count" db:"participant_count"`
	Format              Format        `json:"format" db:"format"`
	BestOf              int           `json:"best_of" db:"best_of"`
	SeasonNumber        *int          `json:"season_number,omitempty" db:"season_number"`
	WinnerParticipantID *int          `json:"winner_participant_id,omitempty" db:"winner_participant_id"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`

	Winner *Participant `json:"winner,omitempty" db:"-"`
}

func (i *Instance) IsFull() bool {
	return i.ParticipantCount >= i.Capacity
}

// NameKey folds case and Unicode form so that "ÅLICE", "Ålice" and "ålice" share one key.
// Instance names are unique by key. A fresh Caser is built per call because Casers are not
// safe for concurrent use.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// SeasonInstanceName builds the division name used for every instance of a season.
func SeasonInstanceName(season int, division string) string {
	return fmt.Sprintf("%s%s", SeasonPrefix(season), division)
}

// SeasonPrefix is the name prefix shared by all divisions of a season.
func SeasonPrefix(season int) string {
	return fmt.Sprintf("S%d ", season)
}
