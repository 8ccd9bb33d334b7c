package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
)

// WithBaggage attaches request-scoped labels (key, value, key, value, ...)
// to ctx using OpenTelemetry baggage, so they propagate into every metric
// emitted via EmitWithContext downstream.
func WithBaggage(ctx context.Context, labels ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	bag := baggage.FromContext(ctx)
	for i := 0; i+1 < len(labels); i += 2 {
		member, err := baggage.NewMember(labels[i], labels[i+1])
		if err != nil {
			continue
		}
		bag, err = bag.SetMember(member)
		if err != nil {
			continue
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// appendBaggageToLabels flattens ctx's baggage members onto extra, baggage
// first so explicit call-site labels can still be read last-wins by
// parseLabels.
func appendBaggageToLabels(ctx context.Context, extra []string) []string {
	bag := baggage.FromContext(ctx)
	members := bag.Members()
	if len(members) == 0 {
		return extra
	}

	out := make([]string, 0, len(members)*2+len(extra))
	for _, m := range members {
		out = append(out, m.Key(), m.Value())
	}
	out = append(out, extra...)
	return out
}
