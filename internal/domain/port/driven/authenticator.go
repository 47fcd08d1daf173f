package driven

import (
	"context"

	"github.com/ericfisherdev/chargegw/internal/domain/model"
)

// Authenticator defines the driven port for performing a full vendor login.
type Authenticator interface {
	// Authenticate logs in with creds, persists the resulting credential and
	// returns it. Failures are *model.AuthenticationError and leave the
	// token store untouched. Implementations must honor ctx's deadline.
	Authenticate(ctx context.Context, creds model.LoginCredentials) (*model.Credential, error)
}
