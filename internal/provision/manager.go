package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/freekieb7/grafana-provisioner/internal/grafana"
	"github.com/freekieb7/grafana-provisioner/internal/telemetry"
	"github.com/freekieb7/grafana-provisioner/internal/util"
	"github.com/freekieb7/grafana-provisioner/internal/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Platform is the subset of the Grafana API the provisioning flow needs.
type Platform interface {
	LookupUser(ctx context.Context, loginOrEmail string) (grafana.User, error)
	CreateUser(ctx context.Context, params grafana.CreateUserParams) (grafana.User, error)
	CreateFolder(ctx context.Context, title string) (grafana.Folder, error)
	SetFolderPermissions(ctx context.Context, folder grafana.Folder, items []grafana.FolderPermission) error
}

type Options struct {
	Resolution config.ResolutionPolicy
	// AdminUserID is granted admin on every folder. Zero disables the grant.
	AdminUserID int64
	OrgID       int64
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Resolution:  cfg.Provision.Resolution,
		AdminUserID: cfg.Provision.AdminUserID,
		OrgID:       cfg.Grafana.OrgID,
	}
}

type Result struct {
	Email       string         `json:"email"`
	Skipped     bool           `json:"skipped"`
	User        grafana.User   `json:"user"`
	UserCreated bool           `json:"userCreated"`
	Folder      grafana.Folder `json:"folder"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// StepError is returned when a Grafana call fails. State is the step that failed.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Manager struct {
	logger    *slog.Logger
	platform  Platform
	validator *webhook.Validator
	metrics   *telemetry.Metrics
	options   Options
}

func NewManager(logger *slog.Logger, platform Platform, validator *webhook.Validator, metrics *telemetry.Metrics, options Options) *Manager {
	if options.Resolution == "" {
		options.Resolution = config.ResolutionSkip
	}
	return &Manager{logger: logger, platform: platform, validator: validator, metrics: metrics, options: options}
}

// FolderTitle is the title of the private folder provisioned for email.
func FolderTitle(email string) string {
	return email + "'s Dashboards"
}

// Provision runs the flow for one event: validate, resolve the user, create the folder, restrict it.
// Steps run strictly in order and the first failure ends the run. Nothing is rolled back.
func (m *Manager) Provision(ctx context.Context, event *webhook.UserRegisteredEvent) (Result, error) {
	start := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "provision.user_registered")
	defer span.End()

	r := &run{manager: m, ctx: ctx, span: span, state: StateValidating, logger: m.logger}

	result, err := r.execute(event)
	result.Elapsed = time.Since(start)

	outcome := telemetry.OutcomeSucceeded
	var invalid *webhook.InvalidPayloadError
	switch {
	case errors.As(err, &invalid):
		outcome = telemetry.OutcomeInvalid
		span.SetStatus(codes.Error, invalid.Reason)
	case err != nil:
		outcome = telemetry.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Skipped:
		outcome = telemetry.OutcomeSkipped
	}
	m.metrics.RecordProvisioning(ctx, outcome, result.Elapsed)

	return result, err
}

// run holds the state of a single provisioning attempt.
type run struct {
	manager *Manager
	ctx     context.Context
	span    trace.Span
	logger  *slog.Logger
	state   State
}

func (r *run) transition(next State) {
	if !r.state.CanTransition(next) {
		r.logger.ErrorContext(r.ctx, "Invalid provisioning transition", "from", r.state, "to", next)
	}
	r.logger.DebugContext(r.ctx, "Provisioning state changed", "from", r.state, "to", next)
	r.span.AddEvent(string(next))
	r.state = next
}

func (r *run) fail(err error) error {
	failed := r.state
	r.transition(StateFailed)
	return &StepError{State: failed, Err: err}
}

func (r *run) execute(event *webhook.UserRegisteredEvent) (Result, error) {
	m := r.manager

	if err := m.validator.Validate(event); err != nil {
		r.logger.WarnContext(r.ctx, "Rejected webhook payload", "error", err)
		r.transition(StateFailed)
		return Result{}, err
	}

	email := event.Event.User.Email
	result := Result{Email: email}
	r.logger = r.logger.With("email", email)
	r.span.SetAttributes(attribute.String("user.email", email))

	r.transition(StateResolvingUser)
	user, created, err := r.resolveUser(event.Event.User)
	switch {
	case errors.Is(err, grafana.ErrUserNotFound):
		r.transition(StateSkipped)
		r.logger.InfoContext(r.ctx, "User not found in Grafana, skipping folder provisioning")
		result.Skipped = true
		return result, nil
	case err != nil:
		return result, r.fail(err)
	}
	result.User = user
	result.UserCreated = created
	r.logger = r.logger.With("user_id", user.ID)

	r.transition(StateCreatingFolder)
	folder, err := r.createFolder(FolderTitle(email))
	if err != nil {
		return result, r.fail(err)
	}
	result.Folder = folder
	r.logger = r.logger.With("folder_id", folder.ID, "folder_uid", folder.UID)

	r.transition(StateSettingPermissions)
	if err := r.setPermissions(folder, user); err != nil {
		// The folder exists but keeps Grafana's default permissions.
		r.logger.ErrorContext(r.ctx, "Folder left without restricted permissions", "folder_title", folder.Title, "error", err)
		return result, r.fail(err)
	}

	r.transition(StateSucceeded)
	r.logger.InfoContext(r.ctx, "Dashboard folder provisioned", "folder_title", folder.Title, "user_created", created)

	return result, nil
}

// resolveUser looks the user up and, under the create policy, creates a missing one.
// Under the skip policy a missing user yields grafana.ErrUserNotFound.
func (r *run) resolveUser(in *webhook.User) (grafana.User, bool, error) {
	m := r.manager

	ctx, span := telemetry.Tracer().Start(r.ctx, "grafana.lookup_user")
	user, err := m.platform.LookupUser(ctx, in.Email)
	endSpan(span, err, grafana.ErrUserNotFound)

	if err == nil {
		r.logger.DebugContext(r.ctx, "Found Grafana user", "user_id", user.ID, "login", user.Login)
		return user, false, nil
	}
	if !errors.Is(err, grafana.ErrUserNotFound) {
		return grafana.User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	if m.options.Resolution != config.ResolutionCreate {
		return grafana.User{}, false, err
	}

	password, err := util.RandomPassword()
	if err != nil {
		return grafana.User{}, false, fmt.Errorf("generate password: %w", err)
	}

	ctx, span = telemetry.Tracer().Start(r.ctx, "grafana.create_user")
	user, err = m.platform.CreateUser(ctx, grafana.CreateUserParams{
		Name:     in.DisplayName(),
		Email:    in.Email,
		Login:    in.Email,
		Password: password,
		OrgID:    m.options.OrgID,
	})
	endSpan(span, err, nil)
	if err != nil {
		return grafana.User{}, false, fmt.Errorf("create user: %w", err)
	}

	r.logger.InfoContext(r.ctx, "Created Grafana user", "user_id", user.ID)
	return user, true, nil
}

func (r *run) createFolder(title string) (grafana.Folder, error) {
	ctx, span := telemetry.Tracer().Start(r.ctx, "grafana.create_folder",
		trace.WithAttributes(attribute.String("folder.title", title)))
	folder, err := r.manager.platform.CreateFolder(ctx, title)
	endSpan(span, err, nil)
	if err != nil {
		return grafana.Folder{}, fmt.Errorf("create folder: %w", err)
	}

	r.logger.DebugContext(r.ctx, "Created folder", "folder_id", folder.ID, "folder_uid", folder.UID)
	return folder, nil
}

func (r *run) setPermissions(folder grafana.Folder, user grafana.User) error {
	items := Grants(user.ID, r.manager.options.AdminUserID)

	ctx, span := telemetry.Tracer().Start(r.ctx, "grafana.set_folder_permissions",
		trace.WithAttributes(attribute.String("folder.ref", folder.Ref())))
	err := r.manager.platform.SetFolderPermissions(ctx, folder, items)
	endSpan(span, err, nil)
	if err != nil {
		return fmt.Errorf("set folder permissions: %w", err)
	}

	r.logger.DebugContext(r.ctx, "Restricted folder permissions", "grants", len(items))
	return nil
}

// Grants is the permission list for a user's private folder: admin for the user and for the
// platform admin principal when one is configured.
func Grants(userID, adminUserID int64) []grafana.FolderPermission {
	items := make([]grafana.FolderPermission, 0, 2)
	if adminUserID > 0 && adminUserID != userID {
		items = append(items, grafana.FolderPermission{UserID: adminUserID, Permission: grafana.PermissionAdmin})
	}
	return append(items, grafana.FolderPermission{UserID: userID, Permission: grafana.PermissionAdmin})
}

func endSpan(span trace.Span, err, expected error) {
	if err != nil && (expected == nil || !errors.Is(err, expected)) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
