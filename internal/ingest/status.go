// Package ingest applies the compact status strings that devices send over
// the broker.  The format is "<espId>:<index>?<state>" where index is the
// zero-based switch position and state "1" means on.  An index of "r" is a
// reserved report marker and changes nothing.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ReportMarker is the switch token a device sends instead of an index when
// it only reports in.
const ReportMarker = "r"

var (
	ErrMissingSeparator = errors.New("ingest: missing ':' separator")
	ErrEmptyEspID       = errors.New("ingest: empty esp id")
	ErrBadIndex         = errors.New("ingest: switch index is not a non-negative number")
)

// Status is one parsed status message.
type Status struct {
	EspID  string
	Index  int
	Report bool
	State  bool
}

// ParseStatus splits raw into its parts.  The state token ends at the next
// '?'; a missing one reads as off, like any token other than "1".
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	espID, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Status{}, ErrMissingSeparator
	}
	espID = strings.TrimSpace(espID)
	if espID == "" {
		return Status{}, ErrEmptyEspID
	}
	parts := strings.Split(rest, "?")
	swTok, stateTok := parts[0], ""
	if len(parts) > 1 {
		stateTok = parts[1]
	}
	if swTok == ReportMarker {
		return Status{EspID: espID, Report: true}, nil
	}
	// ParseUint refuses a sign prefix
	idx, err := strconv.ParseUint(swTok, 10, 31)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %q", ErrBadIndex, swTok)
	}
	return Status{EspID: espID, Index: int(idx), State: stateTok == "1"}, nil
}

// FormatCommand renders a state change for a device in the same format the
// devices use to report it.
func FormatCommand(espID string, index int, state bool) string {
	s := "0"
	if state {
		s = "1"
	}
	return espID + ":" + strconv.Itoa(index) + "?" + s
}
