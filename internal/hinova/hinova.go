// Package hinova implements the lookups of the Hinova SGA integration:
// vehicles by plate, open invoices by vehicle and vehicles by member CPF.
package hinova

import (
	"time"

	"github.com/rendis/blockrun/internal/actions"
)

// DefaultBaseURL is the SGA v2 API root.
const DefaultBaseURL = "https://api.hinova.com.br/api/sga/v2"

// NoRecord is written to the outputs of a lookup that found nothing.
const NoRecord = "sem registro"

// Option configures the handlers created by Register.
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock sets the time source used to compute invoice windows.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Register adds a handler for every Hinova action to the registry. All
// handlers share client.
func Register(reg *actions.Registry, client *actions.APIClient, opts ...Option) error {
	cfg := config{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	for _, h := range []actions.Handler{
		&VehicleLookup{client: client},
		&InvoiceLookup{client: client, now: cfg.now},
		&MemberLookup{client: client},
	} {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
