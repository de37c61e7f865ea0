// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to tell
// failure scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup or a conditional write matched no
// row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a signup collides with the unique email
// index.
var ErrEmailExists = errors.New("email already exists")

// ErrEspExists is returned when a device with the same hardware id already
// exists.
var ErrEspExists = errors.New("esp already exists")

// ErrAlreadyClaimed is returned by Register when the device already has an
// owner.  The ownership check and the write are one statement, so two
// concurrent claims cannot both succeed.
var ErrAlreadyClaimed = errors.New("esp already claimed")
