package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application
// used for custom events and metrics.
var NewRelicContextKey = newRelicContextKey{}

// NewContext returns a context carrying app for custom events and metrics,
// along with a transaction named txnName that method calls are traced under.
// A nil app returns ctx unchanged, along with a no-op end function.
func NewContext(ctx context.Context, app *newrelic.Application, txnName string) (context.Context, func()) {
	if app == nil {
		return ctx, func() {}
	}

	txn := app.StartTransaction(txnName)
	ctx = context.WithValue(ctx, NewRelicContextKey, app)
	ctx = newrelic.NewContext(ctx, txn)
	return ctx, txn.End
}
