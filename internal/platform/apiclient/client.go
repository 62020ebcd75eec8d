// Package apiclient is the REST/JSON client for the EMR backend. It carries
// the bearer token from a TokenStore on every call and turns non-2xx
// responses into *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/domain/account"
	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/clinical"
	"github.com/ehr/mhemr/internal/domain/forms"
	"github.com/ehr/mhemr/internal/domain/patient"
)

// DefaultTimeout bounds every request unless WithTimeout or WithHTTPClient
// says otherwise.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4 << 10

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type Client struct {
	baseURL string
	tokens  *TokenStore
	http    *http.Client
	logger  zerolog.Logger
}

func New(baseURL string, tokens *TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = NewTokenStore("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Tokens returns the store the client reads its bearer token from.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response, method, path string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// -- Session --

// Health reports the backend's liveness flag.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// Login authenticates and stores the returned session token.
func (c *Client) Login(ctx context.Context, username, password string) (*account.LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, account.ErrMissingCredentials
	}
	var res account.LoginResult
	req := account.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &res); err != nil {
		return nil, err
	}
	if res.SessionID == "" {
		return nil, errors.New("login response carried no session id")
	}
	c.tokens.Set(res.SessionID)
	return &res, nil
}

// Logout ends the server session and clears the local token whether or not
// the call succeeded.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
}

func (c *Client) Me(ctx context.Context) (*account.Profile, error) {
	var p account.Profile
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping is the keep-alive call; the response body is ignored.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, nil)
}

// -- Templates --

func (c *Client) ListTemplates(ctx context.Context, status string) ([]forms.Template, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out []forms.Template
	if err := c.do(ctx, http.MethodGet, "/api/templates", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTemplate(ctx context.Context, id int64) (*forms.Template, error) {
	var t forms.Template
	if err := c.do(ctx, http.MethodGet, templatePath(id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTemplate(ctx context.Context, req forms.TemplateRequest) (*forms.Template, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Category) == "" {
		return nil, errors.New("name and category are required")
	}
	var t forms.Template
	if err := c.do(ctx, http.MethodPost, "/api/templates", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTemplate(ctx context.Context, id int64, patch forms.TemplatePatch) (*forms.Template, error) {
	var t forms.Template
	if err := c.do(ctx, http.MethodPut, templatePath(id), nil, patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// -- Patients and forms --

func (c *Client) ListPatients(ctx context.Context) ([]patient.Patient, error) {
	var out []patient.Patient
	if err := c.do(ctx, http.MethodGet, "/api/patients", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPatient(ctx context.Context, patientID string) (*patient.Patient, error) {
	var p patient.Patient
	if err := c.do(ctx, http.MethodGet, "/api/patients/"+url.PathEscape(patientID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPatientForms(ctx context.Context, patientID string) ([]forms.Submission, error) {
	var out []forms.Submission
	if err := c.do(ctx, http.MethodGet, formsPath(patientID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPatientForm(ctx context.Context, patientID string, formID int64) (*forms.Submission, error) {
	var s forms.Submission
	if err := c.do(ctx, http.MethodGet, formPath(patientID, formID), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) CreatePatientForm(ctx context.Context, patientID string, req forms.CreateRequest) (*forms.Submission, error) {
	if req.TemplateID <= 0 {
		return nil, errors.New("template id is required")
	}
	if req.FormData == nil {
		req.FormData = forms.AnswerSet{}
	}
	var s forms.Submission
	if err := c.do(ctx, http.MethodPost, formsPath(patientID), nil, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdatePatientForm(ctx context.Context, patientID string, formID int64, req forms.UpdateRequest) (*forms.Submission, error) {
	var s forms.Submission
	if err := c.do(ctx, http.MethodPut, formPath(patientID, formID), nil, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) DeletePatientForm(ctx context.Context, patientID string, formID int64) error {
	return c.do(ctx, http.MethodDelete, formPath(patientID, formID), nil, nil, nil)
}

// GeneratePatients asks the sandbox for count synthetic patients.
func (c *Client) GeneratePatients(ctx context.Context, count int) (int, error) {
	var out struct {
		Patients int `json:"patients"`
	}
	body := map[string]int{"count": count}
	if err := c.do(ctx, http.MethodPost, "/api/sandbox/patients", nil, body, &out); err != nil {
		return 0, err
	}
	return out.Patients, nil
}

// -- Clinical records --

func (c *Client) ListNotes(ctx context.Context, patientID string) ([]clinical.Note, error) {
	var out []clinical.Note
	if err := c.do(ctx, http.MethodGet, patientPath(patientID, "notes"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateNote(ctx context.Context, patientID string, req clinical.NoteRequest) (*clinical.Note, error) {
	var n clinical.Note
	if err := c.do(ctx, http.MethodPost, patientPath(patientID, "notes"), nil, req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetTreatmentPlan returns nil without error when the patient has no plan.
func (c *Client) GetTreatmentPlan(ctx context.Context, patientID string) (*clinical.Plan, error) {
	var p *clinical.Plan
	if err := c.do(ctx, http.MethodGet, patientPath(patientID, "treatment-plan"), nil, nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) UpsertTreatmentPlan(ctx context.Context, patientID string, req clinical.PlanRequest) (*clinical.PlanResult, error) {
	var res clinical.PlanResult
	if err := c.do(ctx, http.MethodPost, patientPath(patientID, "treatment-plan"), nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) PatientRisk(ctx context.Context, patientID string) (*clinical.RiskReport, error) {
	var r clinical.RiskReport
	if err := c.do(ctx, http.MethodGet, patientPath(patientID, "risk"), nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// -- User administration --

func (c *Client) ListUsers(ctx context.Context) ([]account.UserSummary, error) {
	var out []account.UserSummary
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnlockUser(ctx context.Context, id int64) (*account.UserSummary, error) {
	var res account.UnlockResult
	if err := c.do(ctx, http.MethodPost, userPath(id)+"/unlock", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) ResetUserPassword(ctx context.Context, id int64, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password is required")
	}
	body := account.ResetPasswordRequest{NewPassword: newPassword}
	return c.do(ctx, http.MethodPut, userPath(id)+"/reset-password", nil, body, nil)
}

// -- Audit --

func (c *Client) AuditLogs(ctx context.Context, q audit.Query) (*audit.Page, error) {
	var p audit.Page
	if err := c.do(ctx, http.MethodGet, "/api/audit/logs", q.Values(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) AuditStats(ctx context.Context) (*audit.Stats, error) {
	var st audit.Stats
	if err := c.do(ctx, http.MethodGet, "/api/audit/stats", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func templatePath(id int64) string {
	return "/api/templates/" + strconv.FormatInt(id, 10)
}

func patientPath(patientID, sub string) string {
	return "/api/patients/" + url.PathEscape(patientID) + "/" + sub
}

func userPath(id int64) string {
	return "/api/users/" + strconv.FormatInt(id, 10)
}

func formsPath(patientID string) string {
	return "/api/patients/" + url.PathEscape(patientID) + "/forms"
}

func formPath(patientID string, formID int64) string {
	return formsPath(patientID) + "/" + strconv.FormatInt(formID, 10)
}
