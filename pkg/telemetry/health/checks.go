package health

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/types"
)

// ProviderSource is the registry view used by ProvidersCheck.
type ProviderSource interface {
	All() []registry.ModelProvider
}

// ProvidersCheck fails when no registered provider is routable, that is
// every provider is unavailable or none is registered.
func ProvidersCheck(src ProviderSource) CheckFunc {
	return func(context.Context) error {
		all := src.All()
		if len(all) == 0 {
			return errors.New("no providers registered")
		}
		for _, p := range all {
			if p.Status() != types.StatusUnavailable {
				return nil
			}
		}
		return fmt.Errorf("all %d providers unavailable", len(all))
	}
}

// Pinger is implemented by storage backends that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps a Pinger.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}
