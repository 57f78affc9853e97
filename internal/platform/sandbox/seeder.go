// Package sandbox loads the demo directory and registry that the server
// starts with. The built-in fixtures are embedded; an operator can point
// FIXTURES_FILE at a replacement with the same layout.
package sandbox

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ins/ins/internal/domain/documents"
	"github.com/ins/ins/internal/domain/patient"
	"github.com/ins/ins/internal/platform/auth"
	"github.com/ins/ins/internal/platform/session"
)

//go:embed fixtures.yaml
var builtinFixtures []byte

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// UserFixture is one directory entry. Either Password or PasswordHash must
// be set; hashes come from `ins-server hash-password`.
type UserFixture struct {
	ID           string       `yaml:"id"`
	Username     string       `yaml:"username"`
	Password     string       `yaml:"password,omitempty"`
	PasswordHash string       `yaml:"password_hash,omitempty"`
	Name         string       `yaml:"name"`
	Role         session.Role `yaml:"role"`
}

// Fixtures is the decoded fixture file.
type Fixtures struct {
	Users     []UserFixture        `yaml:"users"`
	Patients  []*patient.Patient   `yaml:"patients"`
	Documents []documents.Document `yaml:"documents"`
}

// Load reads fixtures from path, or the embedded set when path is empty.
func Load(path string) (*Fixtures, error) {
	if path == "" {
		return Parse(builtinFixtures)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read fixtures: %w", err)
	}
	fx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %s: %w", path, err)
	}
	return fx, nil
}

// Parse decodes and checks a fixture document.
func Parse(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixtures) validate() error {
	if len(fx.Users) == 0 {
		return fmt.Errorf("fixtures define no users")
	}
	seen := make(map[string]bool, len(fx.Patients))
	for i, p := range fx.Patients {
		if p == nil || p.ID == "" || p.Name == "" || p.Supervisor == "" {
			return fmt.Errorf("patient %d: id, name and supervisor are required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("patient %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		st, err := patient.ParseStatus(string(p.Status))
		if err != nil {
			return fmt.Errorf("patient %s: %w", p.ID, err)
		}
		p.Status = st
		g, err := patient.ParseGender(string(p.Gender))
		if err != nil {
			return fmt.Errorf("patient %s: %w", p.ID, err)
		}
		p.Gender = g
		for j := range p.Treatments {
			ts, err := patient.ParseTreatmentStatus(string(p.Treatments[j].Status))
			if err != nil {
				return fmt.Errorf("patient %s treatment %d: %w", p.ID, j, err)
			}
			p.Treatments[j].Status = ts
		}
	}
	for i, d := range fx.Documents {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("document %d: id and name are required", i)
		}
	}
	return nil
}

// Catalog returns the shared document library of the fixtures.
func (fx *Fixtures) Catalog() *documents.MemoryCatalog {
	return documents.NewMemoryCatalog(fx.Documents)
}

// ---------------------------------------------------------------------------
// SeedResult
// ---------------------------------------------------------------------------

// SeedResult summarizes a seed run.
type SeedResult struct {
	Users     int           `json:"users"`
	Patients  int           `json:"patients"`
	Documents int           `json:"documents"`
	Duration  time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder copies fixtures into the directory and patient registry.
type Seeder struct {
	fixtures *Fixtures
	logger   zerolog.Logger
}

func NewSeeder(fx *Fixtures, logger zerolog.Logger) *Seeder {
	return &Seeder{fixtures: fx, logger: logger.With().Str("component", "sandbox").Logger()}
}

// Seed registers every user and stores every patient record.
func (s *Seeder) Seed(ctx context.Context, dir *auth.Directory, patients *patient.Service) (*SeedResult, error) {
	start := time.Now()

	for _, u := range s.fixtures.Users {
		err := dir.Add(auth.User{
			ID:           u.ID,
			Username:     u.Username,
			Name:         u.Name,
			Role:         u.Role,
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
		})
		if err != nil {
			return nil, fmt.Errorf("sandbox: seed user: %w", err)
		}
	}

	for _, p := range s.fixtures.Patients {
		if err := patients.Seed(ctx, p.Clone()); err != nil {
			return nil, fmt.Errorf("sandbox: seed patient %s: %w", p.ID, err)
		}
	}

	res := &SeedResult{
		Users:     dir.Len(),
		Patients:  len(s.fixtures.Patients),
		Documents: len(s.fixtures.Documents),
		Duration:  time.Since(start),
	}
	s.logger.Info().
		Int("users", res.Users).
		Int("patients", res.Patients).
		Int("documents", res.Documents).
		Dur("duration", res.Duration).
		Msg("fixtures seeded")
	return res, nil
}
