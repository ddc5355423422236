// Package services hosts maintenance actions exposed on the admin routes.
package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrActionNotFound  = errors.New("action not found")
)

// Service defines a named maintenance surface with status and actions.
type Service interface {
	Name() string
	Status(ctx context.Context) (any, error)
	Actions() map[string]Action
}

// Action executes one maintenance command and returns its text output.
type Action func(ctx context.Context) (string, error)

// Info describes a registered service for listings.
type Info struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// Registry stores services by name.
type Registry struct {
	repo map[string]Service
	mu   sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{repo: make(map[string]Service)}
}

// Register adds a service, replacing any service with the same name.
func (r *Registry) Register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo[s.Name()] = s
}

// All returns a snapshot of all registered services.
func (r *Registry) All() map[string]Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Service, len(r.repo))
	for name, svc := range r.repo {
		out[name] = svc
	}
	return out
}

func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.repo[name]
	return s, ok
}

// List returns services and their action names in deterministic order.
func (r *Registry) List() []Info {
	entries := r.All()
	list := make([]Info, 0, len(entries))
	for name, svc := range entries {
		if svc == nil {
			continue
		}
		actions := make([]string, 0, len(svc.Actions()))
		for action := range svc.Actions() {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		list = append(list, Info{Name: name, Actions: actions})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Execute runs one action of one service.
func (r *Registry) Execute(ctx context.Context, serviceName, actionName string) (string, error) {
	svc, ok := r.Get(serviceName)
	if !ok || svc == nil {
		return "", ErrServiceNotFound
	}
	action, ok := svc.Actions()[actionName]
	if !ok {
		return "", ErrActionNotFound
	}

	out, err := action(ctx)
	if err != nil {
		log.Error().
			Str("service", serviceName).
			Str("action", actionName).
			Err(err).
			Msg("service_action_failed")
		return "", err
	}
	log.Info().
		Str("service", serviceName).
		Str("action", actionName).
		Msg("service_action_executed")
	return out, nil
}
