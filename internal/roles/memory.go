package roles

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps roles and bindings in process memory. Used by tests and
// by dev mode when no Postgres DSN is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	roles    map[string]Role
	bindings map[string]Binding
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:    make(map[string]Role),
		bindings: make(map[string]Binding),
	}
}

func (s *MemoryStore) Create(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, role.Name)
	}
	s.roles[role.Name] = cloneRole(role)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := cloneRole(&role)
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for name := range s.roles {
		role := cloneRole(ptr(s.roles[name]))
		out = append(out, &role)
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, role.Name)
	}
	s.roles[role.Name] = cloneRole(role)
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	role.IsActive = active
	role.UpdatedAt = time.Now().UTC()
	s.roles[name] = role
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.roles, name)
	return nil
}

func (s *MemoryStore) Referencing(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var referrers []string
	for _, role := range s.roles {
		for _, parent := range role.InheritedRoles {
			if parent == name {
				referrers = append(referrers, role.Name)
				break
			}
		}
	}
	return referrers, nil
}

func (s *MemoryStore) Bind(_ context.Context, binding *Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.bindings[binding.Subject]; ok {
		binding.CreatedAt = prior.CreatedAt
	}
	s.bindings[binding.Subject] = *binding
	return nil
}

func (s *MemoryStore) BindingFor(_ context.Context, subject string) (*Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	binding, ok := s.bindings[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, subject)
	}
	out := binding
	return &out, nil
}

func (s *MemoryStore) RemoveBinding(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, subject)
	return nil
}

func cloneRole(role *Role) Role {
	out := *role
	out.Permissions = append([]string(nil), role.Permissions...)
	out.InheritedRoles = append([]string(nil), role.InheritedRoles...)
	return out
}

func ptr(r Role) *Role { return &r }
