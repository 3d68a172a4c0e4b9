package grafana

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
)

// Client talks to the Grafana HTTP API with a single, process-wide credential.
type Client struct {
	rest   *resty.Client
	logger *slog.Logger
}

type Options struct {
	// Timeout for each outbound call. Zero keeps the HTTP client default, which never times out.
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	UserAgent  string
}

func NewClient(logger *slog.Logger, baseURL string, cred config.Credential, opts Options) *Client {
	var rest *resty.Client
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	} else {
		rest = resty.New()
	}

	rest.SetBaseURL(baseURL).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if opts.UserAgent != "" {
		rest.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}

	switch cred.Mode {
	case config.AuthModeBasic:
		rest.SetBasicAuth(cred.Username, cred.Password)
	default:
		rest.SetAuthToken(cred.Token)
	}

	c := &Client{rest: rest, logger: logger}

	rest.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		c.logger.DebugContext(r.Context(), "Grafana request sent", "method", r.Method, "path", r.URL)
		return nil
	})
	rest.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		c.logger.DebugContext(r.Request.Context(), "Grafana response received",
			"method", r.Request.Method,
			"url", r.Request.URL,
			"status_code", r.StatusCode(),
			"duration", r.Time(),
		)
		return nil
	})
	rest.OnError(func(r *resty.Request, err error) {
		c.logger.ErrorContext(r.Context(), "Grafana request failed", "method", r.Method, "url", r.URL, "error", err)
	})

	return c
}

// LookupUser finds a user by login or email. A 404 yields ErrUserNotFound.
func (c *Client) LookupUser(ctx context.Context, loginOrEmail string) (User, error) {
	const path = "/api/users/lookup"

	var user User
	resp, err := c.request(ctx).
		SetQueryParam("loginOrEmail", loginOrEmail).
		SetResult(&user).
		Get(path)
	if err != nil {
		return User{}, transportError(http.MethodGet, path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return User{}, ErrUserNotFound
	}
	if resp.IsError() {
		return User{}, newAPIError(resp, http.MethodGet, path)
	}

	return user, nil
}

// CreateUser creates a user through the admin API and returns it with the id Grafana assigned.
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	const path = "/api/admin/users"

	var created createUserResponse
	resp, err := c.request(ctx).
		SetBody(params).
		SetResult(&created).
		Post(path)
	if err != nil {
		return User{}, transportError(http.MethodPost, path, err)
	}
	if resp.IsError() {
		return User{}, newAPIError(resp, http.MethodPost, path)
	}

	return User{
		ID:    created.ID,
		Email: params.Email,
		Login: params.Login,
		Name:  params.Name,
	}, nil
}

func (c *Client) CreateFolder(ctx context.Context, title string) (Folder, error) {
	const path = "/api/folders"

	var folder Folder
	resp, err := c.request(ctx).
		SetBody(createFolderRequest{Title: title}).
		SetResult(&folder).
		Post(path)
	if err != nil {
		return Folder{}, transportError(http.MethodPost, path, err)
	}
	if resp.IsError() {
		return Folder{}, newAPIError(resp, http.MethodPost, path)
	}

	return folder, nil
}

// SetFolderPermissions replaces the folder's permission list with items.
func (c *Client) SetFolderPermissions(ctx context.Context, folder Folder, items []FolderPermission) error {
	path := "/api/folders/" + folder.Ref() + "/permissions"

	resp, err := c.request(ctx).
		SetBody(folderPermissionsRequest{Items: items}).
		Post(path)
	if err != nil {
		return transportError(http.MethodPost, path, err)
	}
	if resp.IsError() {
		return newAPIError(resp, http.MethodPost, path)
	}

	return nil
}

// CurrentOrg returns the organisation of the configured credential.
func (c *Client) CurrentOrg(ctx context.Context) (Org, error) {
	const path = "/api/org"

	var org Org
	resp, err := c.request(ctx).
		SetResult(&org).
		Get(path)
	if err != nil {
		return Org{}, transportError(http.MethodGet, path, err)
	}
	if resp.IsError() {
		return Org{}, newAPIError(resp, http.MethodGet, path)
	}

	return org, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx).ForceContentType("application/json")
}

func newAPIError(resp *resty.Response, method, path string) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode(),
		Method:     method,
		Path:       path,
		Body:       resp.String(),
	}
}

func transportError(method, path string, err error) error {
	return fmt.Errorf("grafana: %s %s: %w", method, path, err)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
