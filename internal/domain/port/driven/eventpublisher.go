package driven

import (
	"context"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// EventPublisher broadcasts pool changes. Publishing is best effort:
// implementations log delivery failures instead of returning them.
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event)
}
