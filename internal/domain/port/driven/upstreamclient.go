package driven

import (
	"context"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

// UpstreamClient exchanges refresh tokens and reads usage limits from the
// upstream service. Failures are classified model errors.
type UpstreamClient interface {
	RefreshToken(ctx context.Context, cred model.CredentialRecord) (model.RefreshedToken, error)
	FetchUsage(ctx context.Context, cred model.CredentialRecord) (model.UsageInfo, error)
}
