// Package service holds the account and device workflows.  Services depend
// on the small store interfaces below rather than on concrete repositories,
// and every call takes the caller's identity explicitly.
package service

import (
	"context"

	"github.com/switchstack/switchstack-api/internal/model"
)

// UserStore is the persistence the credential workflows need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	ListActive(ctx context.Context) ([]model.User, error)
	Deactivate(ctx context.Context, id uint64) error
}

// EspStore is the persistence the device registry needs.
type EspStore interface {
	Create(ctx context.Context, espID string, noOfSwitches int) (model.Esp, error)
	GetByEspID(ctx context.Context, espID string) (model.Esp, error)
	GetByID(ctx context.Context, id uint64) (model.Esp, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Esp, error)
	Register(ctx context.Context, id, userID uint64, name, icon string) error
	UpdateMeta(ctx context.Context, id uint64, name, icon string) error
}

// SwitchStore updates switch rows scoped by their parent device.
type SwitchStore interface {
	UpdateMeta(ctx context.Context, espPK, switchID uint64, name, icon string) error
	SetState(ctx context.Context, espPK, switchID uint64, state bool) error
}

// CommandPublisher delivers a command string to the devices.
type CommandPublisher interface {
	Publish(ctx context.Context, cmd string) error
}
