package httpapi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/rcsa"
	"rcsa.id/internal/risk"
)

type memUser struct {
	auth.User
	hash string
}

// memStore backs every service in handler tests.
type memStore struct {
	mu          sync.Mutex
	units       map[int64]auth.Unit
	roles       map[int64]auth.Role
	users       map[int64]*memUser
	risks       map[int64]risk.Risk
	masters     map[int64]rcsa.Master
	assessments map[int64]rcsa.Assessment
	seq         int64
}

func newMemStore() *memStore {
	return &memStore{
		units:       make(map[int64]auth.Unit),
		roles:       make(map[int64]auth.Role),
		users:       make(map[int64]*memUser),
		risks:       make(map[int64]risk.Risk),
		masters:     make(map[int64]rcsa.Master),
		assessments: make(map[int64]rcsa.Assessment),
		seq:         100,
	}
}

func (m *memStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *memStore) unitName(id *int64) string {
	if id == nil {
		return ""
	}
	return m.units[*id].Name
}

func (m *memStore) account(u *memUser) *auth.Account {
	role := m.roles[u.RoleID]
	perms := make(auth.Permissions, len(role.Permissions))
	for k, v := range role.Permissions {
		perms[k] = v
	}
	return &auth.Account{
		ID:           u.ID,
		UserID:       u.UserID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.hash,
		Active:       u.Active,
		RoleID:       u.RoleID,
		Role:         role.Name,
		UnitName:     m.unitName(u.UnitID),
		Permissions:  perms,
	}
}

func (m *memStore) view(u *memUser) *auth.User {
	out := u.User
	out.Role = m.roles[u.RoleID].Name
	out.UnitName = m.unitName(u.UnitID)
	return &out
}

func (m *memStore) FindAccountByLogin(_ context.Context, login string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == login || (u.Email != "" && strings.EqualFold(u.Email, login)) {
			return m.account(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) FindAccountByID(_ context.Context, id int64) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return m.account(u), nil
}

func (m *memStore) CreateUser(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == nu.UserID {
			return nil, fmt.Errorf("%w: user_id taken", auth.ErrConflict)
		}
	}
	if _, ok := m.roles[nu.RoleID]; !ok {
		return nil, fmt.Errorf("%w: role", auth.ErrNotFound)
	}
	now := time.Now().UTC()
	u := &memUser{
		User: auth.User{
			ID:        m.next(),
			UserID:    nu.UserID,
			Name:      nu.Name,
			Email:     nu.Email,
			RoleID:    nu.RoleID,
			UnitID:    nu.UnitID,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		hash: nu.PasswordHash,
	}
	m.users[u.ID] = u
	return m.view(u), nil
}

func (m *memStore) ListUsers(_ context.Context, f auth.UserFilter) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.User
	for _, u := range m.users {
		v := m.view(u)
		if f.UnitName != "" && v.UnitName != f.UnitName {
			continue
		}
		if f.RoleID != 0 && v.RoleID != f.RoleID {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return m.view(u), nil
}

func (m *memStore) UpdateUser(_ context.Context, id int64, up auth.UserUpdate) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if up.Name != nil {
		u.Name = *up.Name
	}
	if up.Email != nil {
		u.Email = *up.Email
	}
	if up.PasswordHash != nil {
		u.hash = *up.PasswordHash
	}
	if up.RoleID != nil {
		u.RoleID = *up.RoleID
	}
	if up.UnitID != nil {
		u.UnitID = up.UnitID
	}
	if up.Active != nil {
		u.Active = *up.Active
	}
	return m.view(u), nil
}

func (m *memStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListRoles(context.Context) ([]auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateUnit(_ context.Context, name, code string) (*auth.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if strings.EqualFold(u.Name, name) {
			return nil, fmt.Errorf("%w: unit exists", auth.ErrConflict)
		}
	}
	u := auth.Unit{ID: m.next(), Name: name, Code: code, CreatedAt: time.Now().UTC()}
	m.units[u.ID] = u
	return &u, nil
}

func (m *memStore) ListUnits(context.Context) ([]auth.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.Unit, 0, len(m.units))
	for _, u := range m.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateRisk(_ context.Context, r risk.Risk) (*risk.Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[r.UnitID]
	if !ok {
		return nil, fmt.Errorf("%w: unit", risk.ErrNotFound)
	}
	r.ID = m.next()
	r.UnitName = unit.Name
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.risks[r.ID] = r
	return &r, nil
}

func (m *memStore) GetRisk(_ context.Context, id int64) (*risk.Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.risks[id]
	if !ok {
		return nil, risk.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListRisks(_ context.Context, f risk.Filter) ([]risk.Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []risk.Risk
	for _, r := range m.risks {
		if f.UnitName != "" && r.UnitName != f.UnitName {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateRisk(_ context.Context, r risk.Risk) (*risk.Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.risks[r.ID]
	if !ok {
		return nil, risk.ErrNotFound
	}
	r.UnitName = m.units[r.UnitID].Name
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	m.risks[r.ID] = r
	return &r, nil
}

func (m *memStore) DeleteRisk(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.risks[id]; !ok {
		return risk.ErrNotFound
	}
	delete(m.risks, id)
	return nil
}

func (m *memStore) CreateMaster(_ context.Context, ms rcsa.Master) (*rcsa.Master, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[ms.UnitID]
	if !ok {
		return nil, fmt.Errorf("%w: unit", rcsa.ErrNotFound)
	}
	ms.ID = m.next()
	ms.UnitName = unit.Name
	ms.CreatedAt = time.Now().UTC()
	m.masters[ms.ID] = ms
	return &ms, nil
}

func (m *memStore) GetMaster(_ context.Context, id int64) (*rcsa.Master, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.masters[id]
	if !ok {
		return nil, rcsa.ErrNotFound
	}
	return &ms, nil
}

func (m *memStore) ListMasters(_ context.Context, f rcsa.MasterFilter) ([]rcsa.Master, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rcsa.Master
	for _, ms := range m.masters {
		if f.UnitName != "" && ms.UnitName != f.UnitName {
			continue
		}
		if f.Period != "" && ms.Period != f.Period {
			continue
		}
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateAssessment(_ context.Context, a rcsa.Assessment) (*rcsa.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.next()
	a.Period = m.masters[a.MasterID].Period
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.assessments[a.ID] = a
	return &a, nil
}

func (m *memStore) GetAssessment(_ context.Context, id int64) (*rcsa.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[id]
	if !ok {
		return nil, rcsa.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) ListAssessments(_ context.Context, f rcsa.AssessmentFilter) ([]rcsa.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rcsa.Assessment
	for _, a := range m.assessments {
		switch {
		case f.MasterID != 0 && a.MasterID != f.MasterID,
			f.UnitName != "" && a.UnitName != f.UnitName,
			f.Period != "" && a.Period != f.Period,
			f.Status != "" && a.Status != f.Status:
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAssessment(_ context.Context, a rcsa.Assessment) (*rcsa.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.assessments[a.ID]
	if !ok {
		return nil, rcsa.ErrNotFound
	}
	if !cur.Status.Editable() {
		return nil, rcsa.ErrNotEditable
	}
	a.Period = cur.Period
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	m.assessments[a.ID] = a
	return &a, nil
}

func (m *memStore) TransitionAssessment(_ context.Context, t rcsa.Transition) (*rcsa.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[t.ID]
	if !ok {
		return nil, rcsa.ErrNotFound
	}
	allowed := false
	for _, s := range t.From {
		if a.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: status is %s", rcsa.ErrInvalidStatus, a.Status)
	}
	a.Status = t.To
	a.Note = t.Note
	a.ApprovedBy = t.ApprovedBy
	a.UpdatedAt = time.Now().UTC()
	m.assessments[a.ID] = a
	return &a, nil
}
