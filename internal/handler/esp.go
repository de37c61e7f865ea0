package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/model"
)

// Devices is the device registry as seen by the HTTP layer.
type Devices interface {
	CreateDevice(ctx context.Context, caller model.Identity, espID string, noOfSwitches *int) (model.Esp, error)
	RegisterDevice(ctx context.Context, caller model.Identity, espID, name, icon string) (model.Esp, error)
	UpdateDeviceMeta(ctx context.Context, caller model.Identity, ref string, name, icon *string) (model.Esp, error)
	UpdateSwitchMeta(ctx context.Context, caller model.Identity, ref string, switchID uint64, name, icon *string) (model.Switch, error)
	SetSwitchState(ctx context.Context, caller model.Identity, ref string, switchID uint64, state *bool) (model.Switch, error)
	ListDevices(ctx context.Context, caller model.Identity) ([]model.Esp, error)
	GetDevice(ctx context.Context, caller model.Identity, ref string) (model.Esp, error)
}

type EspHandler struct {
	Devices Devices
}

func NewEspHandler(d Devices) *EspHandler { return &EspHandler{Devices: d} }

type createEspReq struct {
	EspID        string `json:"esp_id" validate:"required"`
	NoOfSwitches *int   `json:"noOfSwitches" validate:"required"`
}

type registerEspReq struct {
	EspID string `json:"esp_id" validate:"required"`
	Name  string `json:"name" validate:"max=120"`
	Icon  string `json:"icon" validate:"max=120"`
}

type metaReq struct {
	Name *string `json:"name" validate:"omitempty,max=120"`
	Icon *string `json:"icon" validate:"omitempty,max=120"`
}

type stateReq struct {
	State *bool `json:"state"`
}

func (h *EspHandler) List(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	esps, err := h.Devices.ListDevices(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list(len(esps), echo.Map{"esps": esps}))
}

func (h *EspHandler) Get(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	e, err := h.Devices.GetDevice(c.Request().Context(), id, c.Param("espId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success(echo.Map{"esp": e}))
}

// Create pre-provisions a device.  Admin only.
func (h *EspHandler) Create(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req createEspReq
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := h.Devices.CreateDevice(c.Request().Context(), id, req.EspID, req.NoOfSwitches)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, success(echo.Map{"esp": e}))
}

// Register claims a device for the caller.
func (h *EspHandler) Register(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req registerEspReq
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := h.Devices.RegisterDevice(c.Request().Context(), id, req.EspID, req.Name, req.Icon)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, success(echo.Map{"esp": e}))
}

func (h *EspHandler) UpdateMeta(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req metaReq
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := h.Devices.UpdateDeviceMeta(c.Request().Context(), id, c.Param("espId"), req.Name, req.Icon)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success(echo.Map{"esp": e}))
}

func (h *EspHandler) UpdateSwitch(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	switchID, err := pathUint(c, "switchId")
	if err != nil {
		return err
	}
	var req metaReq
	if err := bind(c, &req); err != nil {
		return err
	}
	sw, err := h.Devices.UpdateSwitchMeta(c.Request().Context(), id, c.Param("espId"), switchID, req.Name, req.Icon)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success(echo.Map{"switch": sw}))
}

// SetState switches a relay on or off and forwards the command to the
// device.
func (h *EspHandler) SetState(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	switchID, err := pathUint(c, "switchId")
	if err != nil {
		return err
	}
	var req stateReq
	if err := bind(c, &req); err != nil {
		return err
	}
	sw, err := h.Devices.SetSwitchState(c.Request().Context(), id, c.Param("espId"), switchID, req.State)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success(echo.Map{"switch": sw}))
}
