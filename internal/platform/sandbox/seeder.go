// Package sandbox runs an in-memory backend that speaks the EMR REST
// contract, seeded with demo users, patients and form templates. The CLI,
// the API client tests and local development all talk to it.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/ehr/mhemr/internal/domain/account"
	"github.com/ehr/mhemr/internal/domain/clinical"
	"github.com/ehr/mhemr/internal/domain/forms"
	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
)

// FirstPatientCode is the numeric part of the first generated patient code.
const FirstPatientCode = 1001

// SeedFile is the YAML document named by SANDBOX_SEED_FILE.
type SeedFile struct {
	// RandomSeed makes generated patients reproducible; 0 picks one from
	// the clock.
	RandomSeed        int64          `yaml:"random_seed"`
	SyntheticPatients int            `yaml:"synthetic_patients"`
	Users             []SeedUser     `yaml:"users"`
	Patients          []SeedPatient  `yaml:"patients"`
	Templates         []SeedTemplate `yaml:"templates"`
}

type SeedUser struct {
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

type SeedPatient struct {
	Code        string `yaml:"code"`
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	DateOfBirth string `yaml:"date_of_birth"`
	Diagnosis   string `yaml:"primary_diagnosis"`
	// AssignedTo is the username of the responsible technician.
	AssignedTo string `yaml:"assigned_to"`
}

type SeedTemplate struct {
	Name         string            `yaml:"name"`
	Category     string            `yaml:"category"`
	Description  string            `yaml:"description"`
	Status       string            `yaml:"status"`
	AllowedRoles []string          `yaml:"allowed_roles"`
	Fields       []forms.FieldSpec `yaml:"fields"`
}

// LoadSeedFile reads a seed document. Unknown keys are rejected so typos
// surface at startup.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var seed SeedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return &seed, nil
}

func intp(n int) *int { return &n }

// DefaultSeed is used when no seed file is configured.
func DefaultSeed() *SeedFile {
	return &SeedFile{
		RandomSeed:        42,
		SyntheticPatients: 8,
		Users: []SeedUser{
			{Username: "admin", FullName: "Avery Admin", Role: auth.RoleAdmin, Password: "Sandbox!Admin1"},
			{Username: "drlee", FullName: "Dr. Morgan Lee", Role: auth.RolePsychiatrist, Password: "Sandbox!Doctor1"},
			{Username: "tech", FullName: "Taylor Quinn", Role: auth.RoleTechnician, Password: "Sandbox!Techie1"},
		},
		Patients: []SeedPatient{
			{Code: "P-1001", FirstName: "Jordan", LastName: "Blake", DateOfBirth: "1988-04-12", Diagnosis: "Generalized anxiety disorder", AssignedTo: "tech"},
			{Code: "P-1002", FirstName: "Casey", LastName: "Morales", DateOfBirth: "1975-11-30", Diagnosis: "Bipolar II disorder"},
		},
		Templates: []SeedTemplate{
			{
				Name:     "Mood & Symptom Check",
				Category: "Assessment",
				Fields: []forms.FieldSpec{
					{Label: "Mood", Type: forms.FieldScale, Min: intp(0), Max: intp(10)},
					{Label: "Symptoms", Type: forms.FieldCheckboxGroup, Options: []string{"Anxiety", "Insomnia", "Low appetite", "Irritability"}},
					{Label: "Safety plan reviewed", Type: forms.FieldCheckbox},
					{Label: "Notes", Type: forms.FieldTextarea},
				},
			},
			{
				Name:     "PHQ-9 Depression Screen",
				Category: "Assessment",
				Fields: []forms.FieldSpec{
					{Label: "Little interest or pleasure in doing things", Type: forms.FieldScale, Min: intp(0), Max: intp(3)},
					{Label: "Feeling down, depressed, or hopeless", Type: forms.FieldScale, Min: intp(0), Max: intp(3)},
					{Label: "Trouble falling or staying asleep", Type: forms.FieldScale, Min: intp(0), Max: intp(3)},
					{Label: "Difficulty", Type: forms.FieldSelect, Options: []string{"Not difficult at all", "Somewhat difficult", "Very difficult", "Extremely difficult"}},
					{Label: "Clinician signature", Type: forms.FieldSignature},
				},
			},
			{
				Name:         "Psychiatric Intake",
				Category:     "Intake",
				AllowedRoles: []string{auth.RoleAdmin, auth.RolePsychiatrist},
				Fields: []forms.FieldSpec{
					{Label: "Preferred name", Type: forms.FieldText},
					{Label: "Date of first visit", Type: forms.FieldDate},
					{Label: "Previous hospitalizations", Type: forms.FieldNumber},
					{Label: "Presenting concerns", Type: forms.FieldTextarea},
					{Label: "Clinician signature", Type: forms.FieldSignature},
				},
			},
		},
	}
}

var (
	firstNames = []string{
		"Alex", "Bailey", "Cameron", "Dakota", "Emerson", "Finley", "Harper",
		"Jamie", "Kendall", "Logan", "Morgan", "Parker", "Quinn", "Reese",
		"Riley", "Rowan", "Sage", "Skyler", "Tatum", "Avery",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Garcia", "Miller", "Davis",
		"Martinez", "Wilson", "Anderson", "Thomas", "Taylor", "Moore",
		"Jackson", "Lee", "Thompson", "White", "Harris", "Clark", "Nguyen",
	}
	diagnoses = []string{
		"", "Adjustment disorder", "Generalized anxiety disorder", "ADHD",
		"Major depressive disorder", "PTSD", "Insomnia disorder",
	}
)

// DataGenerator produces deterministic synthetic patients.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomDate(minYear, maxYear int) string {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// GeneratePatient returns a patient with the given code and a random name,
// birth date and diagnosis. The starting risk level follows the diagnosis.
func (g *DataGenerator) GeneratePatient(code string) *patient.Patient {
	p := &patient.Patient{
		Code:        code,
		FirstName:   g.pick(firstNames),
		LastName:    g.pick(lastNames),
		DateOfBirth: g.randomDate(1950, 2006),
	}
	p.PrimaryDiagnosis = g.pick(diagnoses)
	p.RiskLevel = clinical.DiagnosisLevel(p.PrimaryDiagnosis)
	return p
}

// SeedResult summarizes what a seed run created.
type SeedResult struct {
	Users     int           `json:"users"`
	Patients  int           `json:"patients"`
	Templates int           `json:"templates"`
	Duration  time.Duration `json:"duration"`
}

// Seeder loads seed documents into the domain services.
type Seeder struct {
	accounts *account.Service
	patients *patient.Service
	forms    *forms.Service

	mu         sync.Mutex
	generator  *DataGenerator
	nextCode   int
	techIDs    []int64
	assignNext int
}

func NewSeeder(accounts *account.Service, patients *patient.Service, formsSvc *forms.Service) *Seeder {
	return &Seeder{accounts: accounts, patients: patients, forms: formsSvc, nextCode: FirstPatientCode}
}

// Apply creates everything in seed. Users go first so patients can be
// assigned to technicians by username.
func (s *Seeder) Apply(ctx context.Context, seed *SeedFile) (*SeedResult, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &SeedResult{}
	userIDs := make(map[string]int64, len(seed.Users))
	for _, u := range seed.Users {
		created, err := s.accounts.CreateUser(ctx, u.Username, u.FullName, u.Role, u.Password)
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		userIDs[created.Username] = created.ID
		if created.Role == auth.RoleTechnician {
			s.techIDs = append(s.techIDs, created.ID)
		}
		res.Users++
	}

	for _, sp := range seed.Patients {
		p := &patient.Patient{
			Code:             sp.Code,
			FirstName:        sp.FirstName,
			LastName:         sp.LastName,
			DateOfBirth:      sp.DateOfBirth,
			PrimaryDiagnosis: sp.Diagnosis,
			RiskLevel:        clinical.DiagnosisLevel(sp.Diagnosis),
		}
		if sp.AssignedTo != "" {
			id, ok := userIDs[sp.AssignedTo]
			if !ok {
				return nil, fmt.Errorf("seed patient %s: unknown user %q", sp.Code, sp.AssignedTo)
			}
			p.AssignedProviderID = &id
		}
		if p.Code == "" {
			p.Code = s.newCode(ctx)
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", p.Code, err)
		}
		res.Patients++
	}

	s.generator = NewDataGenerator(seed.RandomSeed)
	n, err := s.generateLocked(ctx, seed.SyntheticPatients)
	res.Patients += n
	if err != nil {
		return res, err
	}

	for _, st := range seed.Templates {
		req := forms.TemplateRequest{
			Name:         st.Name,
			Category:     st.Category,
			Fields:       st.Fields,
			AllowedRoles: st.AllowedRoles,
		}
		if st.Description != "" {
			desc := st.Description
			req.Description = &desc
		}
		t, err := s.forms.CreateTemplate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("seed template %q: %w", st.Name, err)
		}
		if st.Status != "" && st.Status != t.Status {
			status := st.Status
			if _, err := s.forms.UpdateTemplate(ctx, t.ID, forms.TemplatePatch{Status: &status}); err != nil {
				return nil, fmt.Errorf("seed template %q: %w", st.Name, err)
			}
		}
		res.Templates++
	}

	res.Duration = time.Since(start)
	return res, nil
}

// GeneratePatients adds count synthetic patients, assigning them to the
// seeded technicians round-robin.
func (s *Seeder) GeneratePatients(ctx context.Context, count int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generator == nil {
		s.generator = NewDataGenerator(0)
	}
	return s.generateLocked(ctx, count)
}

func (s *Seeder) generateLocked(ctx context.Context, count int) (int, error) {
	for i := 0; i < count; i++ {
		p := s.generator.GeneratePatient(s.newCode(ctx))
		if len(s.techIDs) > 0 {
			id := s.techIDs[s.assignNext%len(s.techIDs)]
			s.assignNext++
			p.AssignedProviderID = &id
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return i, fmt.Errorf("generate patient %s: %w", p.Code, err)
		}
	}
	return count, nil
}

// newCode returns the next P-#### code not already taken.
func (s *Seeder) newCode(ctx context.Context) string {
	for {
		code := fmt.Sprintf("P-%d", s.nextCode)
		s.nextCode++
		if _, err := s.patients.Resolve(ctx, code); err != nil {
			return code
		}
	}
}

// SeedHandler exposes synthetic data generation to administrators.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(authed *echo.Group) {
	g := authed.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
	g.POST("/patients", h.handleGeneratePatients)
}

type generateRequest struct {
	Count int `json:"count"`
}

func (h *SeedHandler) handleGeneratePatients(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Count == 0 {
		req.Count = 10
	}
	if req.Count < 0 || req.Count > 500 {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be between 1 and 500")
	}
	n, err := h.seeder.GeneratePatients(c.Request().Context(), req.Count)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]int{"patients": n})
}
