package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/ingest"
	"github.com/switchstack/switchstack-api/internal/model"
	"github.com/switchstack/switchstack-api/internal/repository"
)

// MaxSwitches bounds the declared switch count of a device.
const MaxSwitches = 64

// DeviceService is the device registry: pre-provisioning, the one-time
// claim with switch fan-out, metadata edits and switch control.
type DeviceService struct {
	esps     EspStore
	switches SwitchStore
	commands CommandPublisher
	log      *slog.Logger
}

// NewDeviceService wires the registry.  commands may be nil, in which case
// state changes are stored but not forwarded to the devices.
func NewDeviceService(esps EspStore, switches SwitchStore, commands CommandPublisher, log *slog.Logger) *DeviceService {
	if log == nil {
		log = slog.Default()
	}
	return &DeviceService{esps: esps, switches: switches, commands: commands, log: log}
}

// CreateDevice pre-provisions an unowned device without switches.
func (s *DeviceService) CreateDevice(ctx context.Context, caller model.Identity, espID string, noOfSwitches *int) (model.Esp, error) {
	espID = strings.TrimSpace(espID)
	if espID == "" || noOfSwitches == nil {
		return model.Esp{}, apperr.Invalid("Please provide esp_id and noOfSwitches")
	}
	if *noOfSwitches < 1 || *noOfSwitches > MaxSwitches {
		return model.Esp{}, apperr.Invalid("noOfSwitches must be between 1 and %d", MaxSwitches)
	}
	e, err := s.esps.Create(ctx, espID, *noOfSwitches)
	if errors.Is(err, repository.ErrEspExists) {
		return model.Esp{}, apperr.Conflictf("Esp %q already exists", espID)
	}
	if err != nil {
		return model.Esp{}, apperr.Wrap(err, "create esp")
	}
	s.log.Info("esp created", "esp_id", espID, "switches", *noOfSwitches, "by", caller.UserID)
	return e, nil
}

// RegisterDevice claims an unowned device for the caller and provisions its
// switches.  Registration happens once; any later attempt, including by the
// owner, is a Conflict.
func (s *DeviceService) RegisterDevice(ctx context.Context, caller model.Identity, espID, name, icon string) (model.Esp, error) {
	espID = strings.TrimSpace(espID)
	if espID == "" {
		return model.Esp{}, apperr.Invalid("Please provide esp_id")
	}
	e, err := s.esps.GetByEspID(ctx, espID)
	if err != nil {
		return model.Esp{}, espLookupErr(err)
	}
	if e.OwnerID != nil {
		return model.Esp{}, alreadyRegistered()
	}

	err = s.esps.Register(ctx, e.ID, caller.UserID, name, icon)
	switch {
	case errors.Is(err, repository.ErrAlreadyClaimed):
		return model.Esp{}, alreadyRegistered()
	case errors.Is(err, repository.ErrNotFound):
		return model.Esp{}, apperr.NotFoundf("No esp found with that ID")
	case err != nil:
		return model.Esp{}, apperr.Wrap(err, "register esp")
	}

	e, err = s.esps.GetByID(ctx, e.ID)
	if err != nil {
		return model.Esp{}, espLookupErr(err)
	}
	s.log.Info("esp registered", "esp_id", espID, "owner", caller.UserID, "switches", len(e.Switches))
	return e, nil
}

func alreadyRegistered() error { return apperr.Conflictf("This esp is already registered") }

// UpdateDeviceMeta overwrites name and icon.  ref is the hardware id or the
// numeric primary key.
func (s *DeviceService) UpdateDeviceMeta(ctx context.Context, caller model.Identity, ref string, name, icon *string) (model.Esp, error) {
	if err := requireMeta(name, icon); err != nil {
		return model.Esp{}, err
	}
	e, err := s.memberDevice(ctx, caller, ref)
	if err != nil {
		return model.Esp{}, err
	}
	if err := s.esps.UpdateMeta(ctx, e.ID, *name, *icon); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Esp{}, apperr.NotFoundf("No esp found with that ID")
		}
		return model.Esp{}, apperr.Wrap(err, "update esp")
	}
	e.Name, e.Icon = nullable(*name), nullable(*icon)
	return e, nil
}

// UpdateSwitchMeta overwrites name and icon of a switch that belongs to the
// referenced device.
func (s *DeviceService) UpdateSwitchMeta(ctx context.Context, caller model.Identity, ref string, switchID uint64, name, icon *string) (model.Switch, error) {
	if err := requireMeta(name, icon); err != nil {
		return model.Switch{}, err
	}
	e, sw, err := s.memberSwitch(ctx, caller, ref, switchID)
	if err != nil {
		return model.Switch{}, err
	}
	if err := s.switches.UpdateMeta(ctx, e.ID, sw.ID, *name, *icon); err != nil {
		return model.Switch{}, switchWriteErr(err, "update switch")
	}
	sw.Name, sw.Icon = nullable(*name), nullable(*icon)
	return sw, nil
}

// SetSwitchState stores a new state and forwards it to the device as a
// command.  A failed publish is logged; the stored state stands.
func (s *DeviceService) SetSwitchState(ctx context.Context, caller model.Identity, ref string, switchID uint64, state *bool) (model.Switch, error) {
	if state == nil {
		return model.Switch{}, apperr.Invalid("Please provide state")
	}
	e, sw, err := s.memberSwitch(ctx, caller, ref, switchID)
	if err != nil {
		return model.Switch{}, err
	}
	if err := s.switches.SetState(ctx, e.ID, sw.ID, *state); err != nil {
		return model.Switch{}, switchWriteErr(err, "set switch state")
	}
	sw.State = *state

	if s.commands != nil {
		cmd := ingest.FormatCommand(e.EspID, sw.Position, sw.State)
		if err := s.commands.Publish(ctx, cmd); err != nil {
			s.log.Warn("command publish failed", "esp_id", e.EspID, "cmd", cmd, "err", err)
		}
	}
	return sw, nil
}

// ListDevices returns the devices the caller may operate.
func (s *DeviceService) ListDevices(ctx context.Context, caller model.Identity) ([]model.Esp, error) {
	list, err := s.esps.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Wrap(err, "list esps")
	}
	return list, nil
}

// GetDevice returns one device the caller may operate.
func (s *DeviceService) GetDevice(ctx context.Context, caller model.Identity, ref string) (model.Esp, error) {
	return s.memberDevice(ctx, caller, ref)
}

func (s *DeviceService) resolve(ctx context.Context, ref string) (model.Esp, error) {
	ref = strings.TrimSpace(ref)
	e, err := s.esps.GetByEspID(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		if id, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
			e, err = s.esps.GetByID(ctx, id)
		}
	}
	if err != nil {
		return model.Esp{}, espLookupErr(err)
	}
	return e, nil
}

func (s *DeviceService) memberDevice(ctx context.Context, caller model.Identity, ref string) (model.Esp, error) {
	e, err := s.resolve(ctx, ref)
	if err != nil {
		return model.Esp{}, err
	}
	if !e.HasUser(caller.UserID) {
		return model.Esp{}, apperr.Forbiddenf("You are not authorized to access this esp")
	}
	return e, nil
}

func (s *DeviceService) memberSwitch(ctx context.Context, caller model.Identity, ref string, switchID uint64) (model.Esp, model.Switch, error) {
	e, err := s.memberDevice(ctx, caller, ref)
	if err != nil {
		return model.Esp{}, model.Switch{}, err
	}
	i := e.SwitchIndex(switchID)
	if i < 0 {
		return model.Esp{}, model.Switch{}, apperr.Forbiddenf("This switch does not belong to this esp")
	}
	return e, e.Switches[i], nil
}

func espLookupErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundf("No esp found with that ID")
	}
	return apperr.Wrap(err, "load esp")
}

func switchWriteErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundf("No switch found with that ID")
	}
	return apperr.Wrap(err, op)
}

// requireMeta rejects a missing or blank name or icon.
func requireMeta(name, icon *string) error {
	if name == nil || icon == nil || strings.TrimSpace(*name) == "" || strings.TrimSpace(*icon) == "" {
		return apperr.Invalid("Please provide name and icon")
	}
	return nil
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
