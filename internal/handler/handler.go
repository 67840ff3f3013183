// Package handler orchestrates one Config rule invocation: validate the
// event, extract rule parameters, filter scope, evaluate the instance's
// protection against the Deep Security Manager, and report the verdict back
// to AWS Config.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deep-security/config-rules/internal/event"
	"github.com/deep-security/config-rules/internal/models"
	"github.com/deep-security/config-rules/internal/providers/aws/compliance"
	"github.com/deep-security/config-rules/internal/providers/aws/secrets"
	"github.com/deep-security/config-rules/internal/providers/deepsecurity"
	"github.com/deep-security/config-rules/internal/ruleparams"
)

// SessionManager is the Deep Security Manager surface the handler consumes.
// *deepsecurity.Manager satisfies it; tests substitute fakes.
type SessionManager interface {
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
	ListComputers(ctx context.Context) ([]models.Computer, error)
}

// ManagerFactory builds a SessionManager for one manager endpoint.
type ManagerFactory func(cfg deepsecurity.ManagerConfig) SessionManager

// ResolverFactory selects the credentials backend named by the rule
// parameters.
type ResolverFactory func(source ruleparams.SecretSource) secrets.Resolver

// Handler evaluates "is this EC2 instance protected by a Deep Security
// control" invocations. All collaborators are injected; Handler itself holds
// no AWS or manager state.
type Handler struct {
	Resolvers  ResolverFactory
	NewManager ManagerFactory
	Reporter   compliance.Reporter
	Logger     zerolog.Logger

	// Clock supplies the evaluation's ordering timestamp. Nil means
	// time.Now; tests pin it for deterministic evaluations.
	Clock func() time.Time
}

// Handle processes one raw invocation payload to completion.
//
// The returned Result covers every contract outcome (error,
// requirements_not_met, out-of-scope, success, failure); a non-nil error is
// returned only for the faults the contract leaves unhandled: malformed
// embedded JSON and credential resolution failure.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (*models.Result, error) {
	evt, err := event.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := evt.Validate(); err != nil {
		h.Logger.Error().Err(err).Msg("event missing required keys")
		return models.ErrorResult(), nil
	}

	paramsJSON, err := evt.RuleParametersJSON()
	if err != nil {
		return nil, err
	}
	params, err := ruleparams.Parse(paramsJSON)
	if err != nil {
		var reqErr *ruleparams.RequirementsError
		if errors.As(err, &reqErr) {
			h.Logger.Warn().Str("reason", reqErr.Reason).Msg("rule parameter requirements not met")
			return models.RequirementsNotMetResult(reqErr.Reason), nil
		}
		return nil, err
	}

	inv, err := evt.DecodeInvokingEvent()
	if err != nil {
		return nil, err
	}
	item := inv.ConfigurationItem
	if !item.IsEC2Instance() || item.ResourceID == "" {
		h.Logger.Info().
			Str("resource_type", item.ResourceType).
			Str("resource_id", item.ResourceID).
			Msg("resource out of scope, skipping evaluation")
		return models.OutOfScopeResult(), nil
	}

	protected, annotation, err := h.evaluate(ctx, params, item.ResourceID)
	if err != nil {
		return nil, err
	}

	eval := models.Evaluation{
		ResourceType: item.ResourceType,
		ResourceID:   item.ResourceID,
		Compliance:   models.ComplianceFor(protected),
		Annotation:   annotation,
		OrderedAt:    h.now(),
	}

	resp, err := h.Reporter.Report(ctx, eval, evt.Token())
	if err != nil {
		h.Logger.Error().Err(err).
			Str("instance_id", item.ResourceID).
			Str("compliance", string(eval.Compliance)).
			Msg("failed to submit evaluation to AWS Config")
		return models.ReportFailedResult(annotation), nil
	}

	h.Logger.Info().
		Str("instance_id", item.ResourceID).
		Str("control", string(params.Control)).
		Str("compliance", string(eval.Compliance)).
		Msg("evaluation submitted")
	return models.ReportSucceededResult(annotation, resp), nil
}

// evaluate determines whether the named control protects instanceID.
//
// Sign-in and inventory failures degrade to an unprotected verdict rather
// than aborting the invocation; credential resolution failure propagates.
// The manager session, once opened, is closed on every exit path.
func (h *Handler) evaluate(ctx context.Context, params *ruleparams.Params, instanceID string) (protected bool, annotation string, err error) {
	creds, err := h.Resolvers(params.SecretSource).Resolve(ctx, params.UsernameKey, params.PasswordKey)
	if err != nil {
		return false, "", fmt.Errorf("resolve credentials: %w", err)
	}

	mgr := h.NewManager(deepsecurity.ManagerConfig{
		Username:            creds.Username,
		Password:            creds.Password,
		Tenant:              params.Tenant,
		Hostname:            params.Hostname,
		Port:                params.Port,
		IgnoreSSLValidation: params.IgnoreSSLValidation,
		Logger:              h.Logger,
	})

	if err := mgr.SignIn(ctx); err != nil {
		h.Logger.Error().Err(err).Msg("could not authenticate to Deep Security")
		return false, "", nil
	}
	defer func() {
		if signOutErr := mgr.SignOut(ctx); signOutErr != nil {
			h.Logger.Warn().Err(signOutErr).Msg("deep security sign-out failed")
		}
	}()

	computers, err := mgr.ListComputers(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Msg("could not list Deep Security computers")
		return false, "", nil
	}

	for _, comp := range computers {
		if !comp.MatchesInstanceID(instanceID) {
			continue
		}
		status := params.Control.StatusOf(comp)
		annotation = fmt.Sprintf("%s status: %s", params.Control.DisplayName(), status)
		protected = params.Control.Protected(status)
		h.Logger.Info().
			Str("instance_id", instanceID).
			Str("computer_id", comp.ID).
			Str("control", string(params.Control)).
			Str("status", status).
			Bool("protected", protected).
			Msg("matched managed computer")
		return protected, annotation, nil
	}

	// No managed computer for this instance: silently non-compliant.
	h.Logger.Info().Str("instance_id", instanceID).Msg("instance not found in manager inventory")
	return false, "", nil
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}
