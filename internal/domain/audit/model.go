package audit

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Actions recorded by the backend.
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionMe             = "ME"
	ActionAccess401      = "ACCESS_401"
	ActionAccess403      = "ACCESS_403"
	ActionPatientList    = "PATIENT_LIST"
	ActionTemplateGet    = "TEMPLATE_GET"
	ActionTemplateCreate = "TEMPLATE_CREATE"
	ActionTemplateUpdate = "TEMPLATE_UPDATE"
	ActionFormList       = "FORM_LIST"
	ActionFormGet        = "FORM_GET"
	ActionFormCreate     = "FORM_CREATE"
	ActionFormUpdate     = "FORM_UPDATE"
	ActionFormSign       = "FORM_SIGN"
	ActionFormDelete     = "FORM_DELETE"
	ActionAuditLogs      = "AUDIT_LOGS"
	ActionAuditStats     = "AUDIT_STATS"
	ActionNoteList       = "NOTE_LIST"
	ActionNoteCreate     = "NOTE_CREATE"
	ActionPlanGet        = "TREATMENTPLAN_GET"
	ActionPlanUpsert     = "TREATMENTPLAN_UPSERT"
	ActionRiskGet        = "RISK_GET"
	ActionUsersList      = "USERS_LIST"
	ActionUserUnlock     = "USER_UNLOCK"
	ActionUserResetPass  = "USER_RESET_PASSWORD"
)

// DateLayout is the accepted format of date_from and date_to.
const DateLayout = "2006-01-02"

type Entry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      *int64    `json:"userId"`
	Username    *string   `json:"username"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	IPAddress   string    `json:"ipAddress"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
}

// Query is the filter set of GET /api/audit/logs as the caller writes it.
// Zero values mean "any".
type Query struct {
	UserID   int64
	Action   string
	Status   string
	DateFrom string
	DateTo   string
	Limit    int
	Offset   int
}

// Values encodes q as query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.UserID != 0 {
		v.Set("user_id", strconv.FormatInt(q.UserID, 10))
	}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("action", q.Action)
	set("status", q.Status)
	set("date_from", q.DateFrom)
	set("date_to", q.DateTo)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// Filter is a resolved Query. To is exclusive.
type Filter struct {
	UserID *int64
	Action string
	Status string
	From   time.Time
	To     time.Time
}

func (f Filter) Match(e *Entry) bool {
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// Filter resolves the date strings. date_to covers the whole day.
func (q Query) Filter() (Filter, error) {
	f := Filter{Action: q.Action, Status: q.Status}
	if q.UserID != 0 {
		uid := q.UserID
		f.UserID = &uid
	}
	var err error
	if f.From, err = ParseDate(q.DateFrom); err != nil {
		return Filter{}, err
	}
	if f.To, err = ParseDate(q.DateTo); err != nil {
		return Filter{}, err
	}
	if !f.To.IsZero() {
		f.To = f.To.AddDate(0, 0, 1)
	}
	return f, nil
}

// ParseDate parses YYYY-MM-DD as midnight UTC. An empty string yields the
// zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date_from/date_to must be YYYY-MM-DD")
	}
	return t, nil
}

// Page is one page of GET /api/audit/logs.
type Page struct {
	Data    []Entry `json:"data"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"has_more"`
}

// Stats summarises today's access activity.
type Stats struct {
	TotalLoginsToday          int `json:"total_logins_today"`
	FailedAttemptsToday       int `json:"failed_attempts_today"`
	UnauthorizedAttemptsToday int `json:"unauthorized_attempts_today"`
	NotAuthenticatedToday     int `json:"not_authenticated_today"`
	ActiveSessions            int `json:"active_sessions"`
}
