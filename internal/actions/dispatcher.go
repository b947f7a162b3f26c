package actions

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rendis/blockrun/internal/logging"
	"github.com/rendis/blockrun/internal/secrets"
	"github.com/rendis/blockrun/internal/store"
	"github.com/rendis/blockrun/internal/validation"
	"github.com/rendis/blockrun/pkg/schema"
)

// Log descriptions of the dispatcher's terminal states.
const (
	DescMissingCredential  = "Missing credentialsId"
	DescCredentialNotFound = "Credentials not found"
)

// SecretResolver resolves a credential reference of a workspace to its
// decrypted secret. secrets.Resolver implements it.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref, workspaceID string) (map[string]any, error)
}

// SecretValidator checks a decrypted secret against its integration schema.
type SecretValidator interface {
	ValidateSecret(secret map[string]any, secretSchema []byte) error
}

// ExecutionRecorder persists one entry per dispatched block.
type ExecutionRecorder interface {
	AppendExecution(ctx context.Context, rec *store.ExecutionRecord) error
}

// Dispatcher runs integration blocks: it resolves the block's credential and
// hands the options to the handler registered for the action kind.
type Dispatcher struct {
	registry  *Registry
	secrets   SecretResolver
	validator SecretValidator
	recorder  ExecutionRecorder
	logger    *slog.Logger
}

// DispatcherOption configures optional collaborators.
type DispatcherOption func(*Dispatcher)

// WithValidator replaces the JSON Schema validator that checks decrypted
// secrets before they reach a handler.
func WithValidator(v SecretValidator) DispatcherOption {
	return func(d *Dispatcher) { d.validator = v }
}

// WithRecorder appends every completed dispatch to an execution log.
func WithRecorder(r ExecutionRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher. Every action kind of every known
// integration must have a handler in the registry.
func NewDispatcher(registry *Registry, resolver SecretResolver, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil || resolver == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "dispatcher needs a registry and a secret resolver")
	}
	var missing []string
	for _, kinds := range schema.IntegrationActions {
		for _, k := range registry.Missing(kinds) {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable,
			"no handler registered for: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}

	d := &Dispatcher{registry: registry, secrets: resolver, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	if d.validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		d.validator = v
	}
	return d, nil
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch executes one block against the session state. Configuration and
// upstream problems come back as log entries in the result. The error return
// is reserved for corrupted credentials and credential store failures.
func (d *Dispatcher) Dispatch(ctx context.Context, block *schema.Block, state *schema.SessionState) (*schema.ExecutionResult, error) {
	if block == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "block is nil")
	}
	var workspaceID string
	if state != nil {
		workspaceID = state.WorkspaceID
	}
	var kind schema.ActionKind
	if block.Options != nil {
		kind = block.Options.Kind()
	}
	ctx = logging.WithBlock(ctx, workspaceID, block.ID, string(kind))

	res, err := d.dispatch(ctx, block, state, workspaceID, kind)
	if err != nil {
		d.logger.ErrorContext(ctx, "block execution failed", slog.String("error", err.Error()))
		return nil, err
	}

	d.logger.DebugContext(ctx, "block executed",
		slog.Int("logs", len(res.Logs)),
		slog.Int("updates", len(res.NewSetVariableHistory)))
	d.record(ctx, workspaceID, block, res)
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, block *schema.Block, state *schema.SessionState, workspaceID string, kind schema.ActionKind) (*schema.ExecutionResult, error) {
	ec := ExecContext{BlockID: block.ID, OutgoingEdgeID: block.OutgoingEdgeID, State: state}

	if kind == "" {
		return ec.Result(), nil
	}

	handler, err := d.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	ref := block.Options.CredentialsRef()
	if ref == "" {
		return ec.Fail(DescMissingCredential), nil
	}

	secret, err := d.secrets.ResolveSecret(ctx, ref, workspaceID)
	switch {
	case errors.Is(err, secrets.ErrMissingCredential):
		return ec.Fail(DescMissingCredential), nil
	case errors.Is(err, secrets.ErrCredentialNotFound):
		d.logger.WarnContext(ctx, "credential not found", slog.String("credential_id", ref))
		return ec.Fail(DescCredentialNotFound), nil
	case err != nil:
		return nil, err
	}

	integration := handler.Info().Integration
	if err := d.validator.ValidateSecret(secret, validation.CredentialSchema(integration)); err != nil {
		return nil, corrupted(block.ID, ref, integration, err)
	}
	token, ok := secret["token"].(string)
	if !ok || token == "" {
		return nil, corrupted(block.ID, ref, integration, nil)
	}

	ec.Token = token
	return handler.Execute(ctx, block.Options, ec)
}

func corrupted(blockID, ref string, integration schema.BlockType, cause error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeCredentialCorrupted,
		"credential %q does not match the %s credential schema", ref, integration).
		WithBlock(blockID).WithCause(cause)
}

func (d *Dispatcher) record(ctx context.Context, workspaceID string, block *schema.Block, res *schema.ExecutionResult) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.AppendExecution(ctx, store.NewExecutionRecord(workspaceID, block, res)); err != nil {
		d.logger.WarnContext(ctx, "failed to record execution", slog.String("error", err.Error()))
	}
}
