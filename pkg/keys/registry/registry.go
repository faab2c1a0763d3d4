package registry

import (
	"context"
	"errors"

	"github.com/code-payments/keys-server/pkg/keys/common"
)

var (
	ErrSubjectNotFound = errors.New("subject is not registered")
)

// Registry resolves the current rights-holder of a subject. It is owned by an
// external service, and implementations must never cache lookups since
// ownership can change between any two trades.
type Registry interface {
	// ResolveHolder gets the address currently holding the rights to subject.
	//
	// ErrSubjectNotFound is returned if the subject isn't registered.
	ResolveHolder(ctx context.Context, subject string) (common.Address, error)
}
