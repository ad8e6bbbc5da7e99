package analysis

import "context"

// Provider produces the raw reply text for a prompt.  Implementations wrap
// their failures in apperr.ErrProvider (and apperr.ErrProviderTimeout when
// the context deadline passed).
type Provider interface {
	Generate(ctx context.Context, p PromptPayload) (string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, p PromptPayload) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, p PromptPayload) (string, error) {
	return f(ctx, p)
}
