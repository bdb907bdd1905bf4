package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Engines resolves a provider name from a request to its service.
type Engines struct {
	def    string
	byName map[string]*Service
}

func NewEngines(def string, services ...*Service) *Engines {
	e := &Engines{def: canonicalName(def), byName: make(map[string]*Service, len(services))}
	for _, s := range services {
		if s != nil {
			e.byName[canonicalName(s.Name())] = s
		}
	}
	return e
}

func canonicalName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "openai", "gpt":
		return "gpt"
	default:
		return n
	}
}

// GetEngine returns the named service; an empty name selects the default.
func (e *Engines) GetEngine(name string) (*Service, error) {
	n := canonicalName(name)
	if n == "" {
		n = e.def
	}
	if s, ok := e.byName[n]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown llm_name %q; use one of %s", name, strings.Join(e.Names(), ", "))
}

func (e *Engines) Default() (*Service, error) { return e.GetEngine("") }

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byName))
	for n := range e.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager remembers which engine each chat picked.
type Manager struct {
	engs *Engines
	m    sync.Map // chatID -> *Service
}

func NewManager(engs *Engines) *Manager {
	return &Manager{engs: engs}
}

func (m *Manager) Get(chatID int64) (*Service, error) {
	if v, ok := m.m.Load(chatID); ok {
		return v.(*Service), nil
	}
	return m.engs.Default()
}

func (m *Manager) Set(chatID int64, name string) (*Service, error) {
	s, err := m.engs.GetEngine(name)
	if err != nil {
		return nil, err
	}
	m.m.Store(chatID, s)
	return s, nil
}

func (m *Manager) Engines() *Engines { return m.engs }
