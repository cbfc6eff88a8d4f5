package memory

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// Seed is the master data a memory store starts with.
type Seed struct {
	CostCenters []struct {
		TenantID     string  `yaml:"tenant_id"`
		ID           string  `yaml:"id"`
		Name         string  `yaml:"name"`
		ROUserID     *string `yaml:"ro_user_id"`
		DepartmentID *string `yaml:"department_id"`
	} `yaml:"cost_centers"`
	Resources []struct {
		TenantID     string  `yaml:"tenant_id"`
		ID           string  `yaml:"id"`
		DisplayName  string  `yaml:"display_name"`
		UserID       *string `yaml:"user_id"`
		CostCenterID *string `yaml:"cost_center_id"`
		DepartmentID *string `yaml:"department_id"`
		Inactive     bool    `yaml:"inactive"`
	} `yaml:"resources"`
	DepartmentApprovers []struct {
		TenantID       string  `yaml:"tenant_id"`
		DepartmentID   string  `yaml:"department_id"`
		DirectorUserID *string `yaml:"director_user_id"`
	} `yaml:"department_approvers"`
}

// ReadSeed decodes a YAML seed document. Unknown keys are rejected.
func ReadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Seed
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	for i, cc := range s.CostCenters {
		if cc.TenantID == "" || cc.ID == "" {
			return nil, fmt.Errorf("cost_centers[%d]: tenant_id and id are required", i)
		}
	}
	for i, res := range s.Resources {
		if res.TenantID == "" || res.ID == "" {
			return nil, fmt.Errorf("resources[%d]: tenant_id and id are required", i)
		}
	}
	for i, da := range s.DepartmentApprovers {
		if da.TenantID == "" || da.DepartmentID == "" {
			return nil, fmt.Errorf("department_approvers[%d]: tenant_id and department_id are required", i)
		}
	}
	return &s, nil
}

// LoadSeedFile reads the seed at path into s.
func (s *Store) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	seed, err := ReadSeed(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.Apply(seed)
	return nil
}

// Apply stores every row of seed.
func (s *Store) Apply(seed *Seed) {
	for _, cc := range seed.CostCenters {
		s.PutCostCenter(repository.CostCenter{
			ID:           cc.ID,
			TenantID:     cc.TenantID,
			Name:         cc.Name,
			ROUserID:     cc.ROUserID,
			DepartmentID: cc.DepartmentID,
		})
	}
	for _, r := range seed.Resources {
		s.PutResource(repository.Resource{
			ID:           r.ID,
			TenantID:     r.TenantID,
			DisplayName:  r.DisplayName,
			UserID:       r.UserID,
			CostCenterID: r.CostCenterID,
			DepartmentID: r.DepartmentID,
			IsActive:     !r.Inactive,
		})
	}
	for _, da := range seed.DepartmentApprovers {
		s.PutDepartmentApprover(repository.DepartmentApprover{
			TenantID:       da.TenantID,
			DepartmentID:   da.DepartmentID,
			DirectorUserID: da.DirectorUserID,
		})
	}
}
