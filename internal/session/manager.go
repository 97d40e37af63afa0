package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/cexll/jiralabel/internal/concurrency"
	"github.com/cexll/jiralabel/internal/config"
	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/triage"
)

// ErrInvalidCredentials is returned when Jira rejects a login.
var ErrInvalidCredentials = errors.New("invalid Jira credentials")

// Manager creates sessions from Jira logins and resolves them from requests.
type Manager struct {
	cfg      *config.Config
	store    *Store
	codec    *Codec
	hl       *highlight.Highlighter
	recorder labeling.Recorder
	locks    *concurrency.IssueLocks

	// newClient is replaceable in tests.
	newClient func(jira.Credentials, jira.Options) (labeling.JiraClient, error)
}

// NewManager wires the session store to the labeling stack. recorder may
// be nil.
func NewManager(cfg *config.Config, store *Store, codec *Codec, hl *highlight.Highlighter, recorder labeling.Recorder) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		codec:    codec,
		hl:       hl,
		recorder: recorder,
		locks:    concurrency.NewIssueLocks(),
		newClient: func(creds jira.Credentials, opts jira.Options) (labeling.JiraClient, error) {
			client, err := jira.NewClient(creds, opts)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

// Login verifies the credentials against Jira and stores a new session. An
// empty instance selects the configured default.
func (m *Manager) Login(ctx context.Context, email, apiToken, instance string) (*Session, error) {
	email = strings.TrimSpace(email)
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = m.cfg.JiraInstance
	}

	client, err := m.newClient(jira.Credentials{Email: email, APIToken: apiToken, Instance: instance}, m.cfg.JiraOptions())
	if err != nil {
		return nil, err
	}

	opts := m.cfg.ServiceOptions(email)
	opts.Locks = m.locks
	svc := labeling.NewService(client, opts, m.recorder)
	user, err := svc.Login(ctx)
	if err != nil {
		if jira.IsUnauthorized(err) {
			log.Printf("[Session] Jira rejected login for %s on %s", email, instance)
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("failed to reach Jira: %w", err)
	}

	sess := m.store.Create(&Session{
		Email:       email,
		Instance:    instance,
		AccountID:   user.AccountID,
		DisplayName: user.DisplayName,
		Service:     svc,
		View:        triage.NewController(svc, m.hl, triage.Options{ChargeableID: m.cfg.ChargeableID}),
	})
	log.Printf("[Session] %s logged in to %s (session %s)", email, instance, sess.ID)
	return sess, nil
}

// Attach sets the session cookie for sess on w.
func (m *Manager) Attach(w http.ResponseWriter, sess *Session) error {
	cookie, err := m.codec.Cookie(sess.ID)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)
	return nil
}

// Current returns the live session of r.
func (m *Manager) Current(r *http.Request) (*Session, bool) {
	id, err := m.codec.FromRequest(r)
	if err != nil {
		return nil, false
	}
	return m.store.Get(id)
}

// Logout ends the session of r, if any, and clears the cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) {
	if id, err := m.codec.FromRequest(r); err == nil {
		m.store.Delete(id)
	}
	http.SetCookie(w, m.codec.ClearCookie())
}

// ChargeableID is the fixed chargeable id sent with every update.
func (m *Manager) ChargeableID() string {
	return m.cfg.ChargeableID
}

// Highlighter returns the keyword highlighter shared by all sessions.
func (m *Manager) Highlighter() *highlight.Highlighter {
	return m.hl
}
