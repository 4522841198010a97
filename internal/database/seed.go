package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML shape accepted by LoadSeed.
//
//	founders:
//	  - id: ada
//	    name: Ada
//	    handle: "@ada"
//	    status: approved
//	    active: true
//	    votes: 3
//	winners:
//	  - founder: ada
//	    week: 1
type Seed struct {
	Founders []SeedFounder `yaml:"founders"`
	Winners  []SeedWinner  `yaml:"winners"`
}

// SeedFounder is one founder with an optional number of anonymous votes.
type SeedFounder struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Handle      string        `yaml:"handle"`
	Description string        `yaml:"description"`
	VideoURL    string        `yaml:"video_url"`
	SiteLink    string        `yaml:"site_link"`
	Status      FounderStatus `yaml:"status"`
	Active      *bool         `yaml:"active"`
	Votes       int           `yaml:"votes"`
}

// SeedWinner publishes a founder (by seed ID) for a week.
type SeedWinner struct {
	Founder string `yaml:"founder"`
	Week    int    `yaml:"week"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, f := range seed.Founders {
		if f.Name == "" {
			return nil, fmt.Errorf("seed founder %d: name is required", i)
		}
		if f.Votes < 0 {
			return nil, fmt.Errorf("seed founder %s: votes must not be negative", f.Name)
		}
	}
	return &seed, nil
}

// ApplySeed loads founders, their votes and winners into the repository.
func (m *MemoryRepository) ApplySeed(seed *Seed) error {
	ids := make(map[string]string, len(seed.Founders))
	for _, sf := range seed.Founders {
		active := true
		if sf.Active != nil {
			active = *sf.Active
		}
		status := sf.Status
		if status == "" {
			status = FounderApproved
		}
		f := m.AddFounder(Founder{
			ID:          sf.ID,
			Name:        sf.Name,
			Handle:      nullable(sf.Handle),
			Description: nullable(sf.Description),
			VideoURL:    nullable(sf.VideoURL),
			SiteLink:    nullable(sf.SiteLink),
			Status:      status,
			IsActive:    active,
		})
		if sf.ID != "" {
			ids[sf.ID] = f.ID
		}
		ids[sf.Name] = f.ID

		m.mu.Lock()
		for i := 0; i < sf.Votes; i++ {
			m.nextID++
			m.votes = append(m.votes, Vote{ID: m.nextID, FounderID: f.ID, CreatedAt: f.CreatedAt})
		}
		m.mu.Unlock()
	}
	for _, w := range seed.Winners {
		id, ok := ids[w.Founder]
		if !ok {
			return fmt.Errorf("seed winner week %d: unknown founder %q", w.Week, w.Founder)
		}
		m.AddWinner(id, w.Week)
	}
	return nil
}
