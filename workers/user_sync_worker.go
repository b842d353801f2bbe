package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"progress-ledger/models"
	"progress-ledger/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteUser is the part of the profile service's change feed we consume.
type RemoteUser struct {
	ExternalID    string    `json:"external_id"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type userChangesResponse struct {
	Users []RemoteUser `json:"users"`
}

// UserSyncWorker provisions progress rows for users announced by the profile
// service. Existing rows are never modified.
type UserSyncWorker struct {
	db           *gorm.DB
	log          *utils.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewUserSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration, log *utils.Logger) *UserSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &UserSyncWorker{
		db:           db,
		log:          log,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

// Run backfills from the beginning, then polls until ctx is cancelled.
func (w *UserSyncWorker) Run(ctx context.Context) {
	w.log.Info("user sync worker started", "interval", w.interval)
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial user sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("user sync failed", "since", w.since, "error", err)
			}
		case <-ctx.Done():
			w.log.Info("user sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the last successful batch and returns how
// many new users were created.
func (w *UserSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	users, err := w.fetch(ctx, w.since)
	if err != nil {
		return 0, err
	}

	created := 0
	latest := w.since
	for _, u := range users {
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
		id := strings.TrimSpace(u.ExternalID)
		if id == "" || !activeAccount(u.AccountStatus) {
			continue
		}
		res := w.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.User{ID: id, Level: 1})
		if res.Error != nil {
			return created, fmt.Errorf("provision user %q: %w", id, res.Error)
		}
		created += int(res.RowsAffected)
	}
	w.since = latest

	if created > 0 {
		w.log.Info("users provisioned", "created", created, "received", len(users))
	}
	return created, nil
}

func activeAccount(status string) bool {
	switch strings.ToLower(status) {
	case "deactivated", "suspended", "deleted":
		return false
	}
	return true
}

func (w *UserSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteUser, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid user sync URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user sync request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("user sync: status %d: %s", resp.StatusCode, body)
	}

	var out userChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode user sync response: %w", err)
	}
	return out.Users, nil
}
