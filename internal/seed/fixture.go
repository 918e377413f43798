// Package seed provides helpers to create demo data for the social graph.
// Friendships are always created through the friend request state machine so
// seeded data obeys the same invariants as live traffic. These helpers are
// intended for development and testing only.
package seed

import (
	"fmt"
	"os"

	"socialgraph/internal/directory"
	"socialgraph/internal/models"

	"gopkg.in/yaml.v3"
)

// Pair names two users in a fixture. For pending requests From is the sender.
type Pair struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Fixture is a declarative social graph.
type Fixture struct {
	Users       []directory.Profile `yaml:"users"`
	Friendships []Pair              `yaml:"friendships"`
	Pending     []Pair              `yaml:"pending"`
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteFixture encodes f as YAML into path.
func WriteFixture(path string, f *Fixture) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every uid and that no pair is a self-pair.
func (f *Fixture) Validate() error {
	seen := make(map[string]struct{}, len(f.Users))
	for _, u := range f.Users {
		if err := models.ValidateUID(u.UID); err != nil {
			return fmt.Errorf("user %q: %w", u.UID, err)
		}
		if _, dup := seen[u.UID]; dup {
			return fmt.Errorf("user %q listed twice", u.UID)
		}
		seen[u.UID] = struct{}{}
	}

	pairs := append(append([]Pair{}, f.Friendships...), f.Pending...)
	for _, p := range pairs {
		for _, uid := range []string{p.From, p.To} {
			if err := models.ValidateUID(uid); err != nil {
				return fmt.Errorf("pair %s/%s: %w", p.From, p.To, err)
			}
		}
		if p.From == p.To {
			return fmt.Errorf("pair %s/%s: self-pair", p.From, p.To)
		}
	}
	return nil
}

// Profiles returns the fixture's users as a profile lookup.
func (f *Fixture) Profiles() directory.StaticProfiles {
	out := make(directory.StaticProfiles, len(f.Users))
	for _, u := range f.Users {
		out[u.UID] = u
	}
	return out
}
