package provisioning

import (
	"fmt"

	"github.com/imamik/eksforge/internal/config"
)

// ValidationPhase implements the Phase interface for pre-flight validation.
// It makes no provider calls.
type ValidationPhase struct{}

// NewValidationPhase creates a new validation phase.
func NewValidationPhase() *ValidationPhase {
	return &ValidationPhase{}
}

// Name implements the Phase interface.
func (vp *ValidationPhase) Name() string {
	return "validation"
}

// Provision implements the Phase interface.
func (vp *ValidationPhase) Provision(ctx *Context) error {
	ctx.Observer.Printf("[Validation] Running pre-flight validation...")

	problems := Validate(ctx.Descriptor, ctx.Env)
	for _, p := range problems {
		if p.IsError() {
			ctx.Observer.Event(Event{Type: EventValidationError, Phase: "validation", Resource: p.Field, Message: p.Message})
		} else {
			ctx.Observer.Event(Event{Type: EventValidationWarning, Phase: "validation", Resource: p.Field, Message: p.Message})
		}
	}

	if config.HasErrors(problems) {
		return &ConfigurationError{Problems: problems}
	}

	ctx.Observer.Printf("[Validation] Validation passed")
	return nil
}

// Validate checks the descriptor and the environment it is deployed into.
func Validate(desc *config.Descriptor, env config.Environment) []config.ValidationError {
	if desc == nil {
		return []config.ValidationError{{Field: "descriptor", Message: "descriptor is required", Severity: config.SeverityError}}
	}
	problems := desc.Validate()
	if err := env.Validate(); err != nil {
		problems = append(problems, config.ValidationError{Field: "environment", Message: err.Error(), Severity: config.SeverityError})
	}
	return problems
}

// AccountPhase resolves the account of the active credentials and checks
// it against the configured account.
type AccountPhase struct{}

// NewAccountPhase creates a new account phase.
func NewAccountPhase() *AccountPhase {
	return &AccountPhase{}
}

// Name implements the Phase interface.
func (ap *AccountPhase) Name() string {
	return "account"
}

// Provision implements the Phase interface. It fills Env.AccountID when it
// was not configured.
func (ap *AccountPhase) Provision(ctx *Context) error {
	account, err := ctx.Cloud.CallerAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve caller account: %w", err)
	}
	if ctx.Env.AccountID != "" && ctx.Env.AccountID != account {
		return config.NewConfigurationError("environment.accountId",
			"credentials belong to account %s, descriptor targets %s", account, ctx.Env.AccountID)
	}
	ctx.Env.AccountID = account
	ctx.Observer.Printf("[Account] Deploying into account %s (%s)", account, ctx.Env.Region)
	return nil
}
