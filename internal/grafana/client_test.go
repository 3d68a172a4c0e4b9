package grafana_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/freekieb7/grafana-provisioner/internal/grafana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bearer = config.Credential{Mode: config.AuthModeToken, Token: "test-token"}

func newTestClient(t *testing.T, handler http.HandlerFunc, cred config.Credential, opts grafana.Options) *grafana.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return grafana.NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), server.URL, cred, opts)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_LookupUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/users/lookup", r.URL.Path)
			assert.Equal(t, "user@example.com", r.URL.Query().Get("loginOrEmail"))
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "email": "user@example.com", "login": "user", "name": "User"})
		}, bearer, grafana.Options{})

		user, err := client.LookupUser(context.Background(), "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, grafana.User{ID: 7, Email: "user@example.com", Login: "user", Name: "User"}, user)
	})

	t.Run("not_found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "user not found"})
		}, bearer, grafana.Options{})

		_, err := client.LookupUser(context.Background(), "ghost@example.com")
		assert.ErrorIs(t, err, grafana.ErrUserNotFound)
	})

	t.Run("server_error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid API key"})
		}, bearer, grafana.Options{})

		_, err := client.LookupUser(context.Background(), "user@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, grafana.ErrUserNotFound)

		var apiErr *grafana.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "/api/users/lookup", apiErr.Path)
		assert.Contains(t, apiErr.Body, "invalid API key")
		assert.Equal(t, http.StatusUnauthorized, grafana.StatusCode(err))
	})
}

func TestClient_CreateUser(t *testing.T) {
	basic := config.Credential{Mode: config.AuthModeBasic, Username: "admin", Password: "secret"}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/users", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body["email"])
		assert.Equal(t, "new@example.com", body["login"])
		assert.Equal(t, "New User", body["name"])
		assert.Equal(t, "pw", body["password"])
		assert.EqualValues(t, 1, body["OrgId"])

		writeJSON(w, http.StatusOK, map[string]any{"id": 12, "message": "User created"})
	}, basic, grafana.Options{})

	user, err := client.CreateUser(context.Background(), grafana.CreateUserParams{
		Name:     "New User",
		Email:    "new@example.com",
		Login:    "new@example.com",
		Password: "pw",
		OrgID:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), user.ID)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestClient_CreateFolder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/folders", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com's Dashboards", body["title"])

		writeJSON(w, http.StatusOK, map[string]any{"id": 42, "uid": "abc123", "title": body["title"]})
	}, bearer, grafana.Options{})

	folder, err := client.CreateFolder(context.Background(), "user@example.com's Dashboards")
	require.NoError(t, err)
	assert.Equal(t, grafana.Folder{ID: 42, UID: "abc123", Title: "user@example.com's Dashboards"}, folder)
}

func TestClient_SetFolderPermissions(t *testing.T) {
	tests := []struct {
		name     string
		folder   grafana.Folder
		wantPath string
	}{
		{name: "by_uid", folder: grafana.Folder{ID: 42, UID: "abc123"}, wantPath: "/api/folders/abc123/permissions"},
		{name: "by_id", folder: grafana.Folder{ID: 42}, wantPath: "/api/folders/42/permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)

				var body struct {
					Items []struct {
						UserID     int64 `json:"userId"`
						Permission int   `json:"permission"`
					} `json:"items"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				require.Len(t, body.Items, 2)
				assert.Equal(t, int64(1), body.Items[0].UserID)
				assert.Equal(t, 4, body.Items[0].Permission)
				assert.Equal(t, int64(7), body.Items[1].UserID)
				assert.Equal(t, 4, body.Items[1].Permission)

				writeJSON(w, http.StatusOK, map[string]any{"message": "Folder permissions updated"})
			}, bearer, grafana.Options{})

			err := client.SetFolderPermissions(context.Background(), tt.folder, []grafana.FolderPermission{
				{UserID: 1, Permission: grafana.PermissionAdmin},
				{UserID: 7, Permission: grafana.PermissionAdmin},
			})
			require.NoError(t, err)
		})
	}

	t.Run("rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "permission denied"})
		}, bearer, grafana.Options{})

		err := client.SetFolderPermissions(context.Background(), grafana.Folder{UID: "abc"}, nil)
		assert.Equal(t, http.StatusForbidden, grafana.StatusCode(err))
	})
}

func TestClient_CurrentOrg(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/org", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Main Org."})
	}, bearer, grafana.Options{UserAgent: "provisioner-test"})

	org, err := client.CurrentOrg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, grafana.Org{ID: 1, Name: "Main Org."}, org)
}

func TestClient_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	}, bearer, grafana.Options{Timeout: 20 * time.Millisecond})

	_, err := client.LookupUser(context.Background(), "slow@example.com")
	require.Error(t, err)
	assert.Equal(t, 0, grafana.StatusCode(err))
}

func TestPermission_String(t *testing.T) {
	assert.Equal(t, "view", grafana.PermissionView.String())
	assert.Equal(t, "edit", grafana.PermissionEdit.String())
	assert.Equal(t, "admin", grafana.PermissionAdmin.String())
	assert.Equal(t, "unknown", grafana.Permission(3).String())
}
