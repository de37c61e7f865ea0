package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/switchstack/switchstack-api/internal/model"
	"github.com/switchstack/switchstack-api/internal/repository"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[uint64]*model.User{}} }

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.IsActive = true
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.byID {
		if u.Email == email && u.IsActive {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || !u.IsActive {
		return model.User{}, repository.ErrNotFound
	}
	return *u, nil
}

func (m *memUsers) ListActive(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.User{}
	for id := uint64(1); id <= m.nextID; id++ {
		if u, ok := m.byID[id]; ok && u.IsActive {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) Deactivate(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || !u.IsActive {
		return repository.ErrNotFound
	}
	u.IsActive = false
	return nil
}

// memDevices implements EspStore and SwitchStore over maps.  Register is a
// conditional claim under the mutex, like the single UPDATE of the MySQL
// repository.
type memDevices struct {
	mu         sync.Mutex
	nextEsp    uint64
	nextSwitch uint64
	esps       map[uint64]*model.Esp
	writes     int
}

func newMemDevices() *memDevices { return &memDevices{esps: map[uint64]*model.Esp{}} }

func (m *memDevices) Create(_ context.Context, espID string, n int) (model.Esp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.esps {
		if e.EspID == espID {
			return model.Esp{}, repository.ErrEspExists
		}
	}
	m.nextEsp++
	e := &model.Esp{ID: m.nextEsp, EspID: espID, NoOfSwitches: n, Users: []uint64{}, Switches: []model.Switch{}}
	m.esps[e.ID] = e
	return clone(e), nil
}

func (m *memDevices) GetByEspID(_ context.Context, espID string) (model.Esp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.esps {
		if e.EspID == espID {
			return clone(e), nil
		}
	}
	return model.Esp{}, repository.ErrNotFound
}

func (m *memDevices) GetByID(_ context.Context, id uint64) (model.Esp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.esps[id]
	if !ok {
		return model.Esp{}, repository.ErrNotFound
	}
	return clone(e), nil
}

func (m *memDevices) ListByUser(_ context.Context, userID uint64) ([]model.Esp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Esp{}
	for id := uint64(1); id <= m.nextEsp; id++ {
		if e, ok := m.esps[id]; ok && e.HasUser(userID) {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (m *memDevices) Register(_ context.Context, id, userID uint64, name, icon string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.esps[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.OwnerID != nil {
		return repository.ErrAlreadyClaimed
	}
	owner := userID
	e.OwnerID = &owner
	e.Users = append(e.Users, userID)
	e.Name, e.Icon = nullable(name), nullable(icon)
	e.IsActive = true
	if len(e.Switches) < e.NoOfSwitches {
		e.Switches = e.Switches[:0]
		for i := 0; i < e.NoOfSwitches; i++ {
			m.nextSwitch++
			e.Switches = append(e.Switches, model.Switch{ID: m.nextSwitch, EspID: e.ID, Position: i})
		}
	}
	m.writes++
	return nil
}

func (m *memDevices) UpdateMeta(_ context.Context, id uint64, name, icon string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.esps[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Name, e.Icon = nullable(name), nullable(icon)
	m.writes++
	return nil
}

// switchStore exposes the switch half of memDevices; both stores have an
// UpdateMeta method with different arguments.
type switchStore struct{ *memDevices }

func (s switchStore) UpdateMeta(_ context.Context, espPK, switchID uint64, name, icon string) error {
	return s.withSwitch(espPK, switchID, func(sw *model.Switch) {
		sw.Name, sw.Icon = nullable(name), nullable(icon)
	})
}

func (s switchStore) SetState(_ context.Context, espPK, switchID uint64, state bool) error {
	return s.withSwitch(espPK, switchID, func(sw *model.Switch) { sw.State = state })
}

func (m *memDevices) withSwitch(espPK, switchID uint64, fn func(*model.Switch)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.esps[espPK]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range e.Switches {
		if e.Switches[i].ID == switchID {
			fn(&e.Switches[i])
			m.writes++
			return nil
		}
	}
	return repository.ErrNotFound
}

func clone(e *model.Esp) model.Esp {
	cp := *e
	cp.Users = append([]uint64{}, e.Users...)
	cp.Switches = append([]model.Switch{}, e.Switches...)
	return cp
}

type recordingPublisher struct {
	mu   sync.Mutex
	cmds []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cmds = append(p.cmds, cmd)
	return p.err
}

var errBroker = errors.New("broker unavailable")
