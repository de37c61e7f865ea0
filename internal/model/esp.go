package model

import "time"

// Esp represents a relay-controller device as stored in the `esps` table
// together with its membership rows (`esp_users`) and its switches.
//
// Fields:
//
//	ID           – primary key identifier.
//	EspID        – unique hardware identifier printed on the device.
//	OwnerID      – user that claimed the device; nil until registration.
//	Users        – users allowed to operate the device.
//	Name, Icon   – display metadata, nil until set.
//	IsActive     – set once the device has been registered.
//	NoOfSwitches – declared switch count, fixed at creation.
//	Switches     – switches ordered by their index.
type Esp struct {
	ID           uint64    `json:"id"`
	EspID        string    `json:"esp_id"`
	OwnerID      *uint64   `json:"owner,omitempty"`
	Users        []uint64  `json:"users,omitempty"`
	Name         *string   `json:"name"`
	Icon         *string   `json:"icon"`
	IsActive     bool      `json:"active"`
	NoOfSwitches int       `json:"noOfSwitches"`
	Switches     []Switch  `json:"switches"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasUser reports whether userID is allowed to operate the device.
func (e *Esp) HasUser(userID uint64) bool {
	for _, u := range e.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// SwitchIndex returns the index of switchID within the device's switch
// sequence, or -1 when the switch belongs to another device.
func (e *Esp) SwitchIndex(switchID uint64) int {
	for i, sw := range e.Switches {
		if sw.ID == switchID {
			return i
		}
	}
	return -1
}

// Switch is one relay channel of an Esp.  Position is the zero-based index
// within the parent's switch sequence; the device status protocol addresses
// switches by it.
type Switch struct {
	ID       uint64  `json:"id"`
	EspID    uint64  `json:"esp"`
	Position int     `json:"index"`
	Name     *string `json:"name"`
	Icon     *string `json:"icon"`
	State    bool    `json:"state"`
}
