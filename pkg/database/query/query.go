package query

import (
	"errors"
)

var ErrQueryNotSupported = errors.New("the requested query option is not supported")

const maxPagingLimit = 1000

// SupportedOptions is a bit set of the options a query accepts
type SupportedOptions byte

const (
	CanLimitResults SupportedOptions = 1 << iota
	CanSortBy
	CanQueryByCursor
)

// QueryOptions is the resolved set of paging options for a query
type QueryOptions struct {
	Supported SupportedOptions

	SortBy Ordering
	Limit  uint64
	Cursor Cursor
}

type Option func(*QueryOptions) error

// Apply applies opts in order, stopping at the first error
func (qo *QueryOptions) Apply(opts ...Option) error {
	for _, o := range opts {
		if err := o(qo); err != nil {
			return err
		}
	}
	return nil
}

func requires(capability SupportedOptions, apply func(qo *QueryOptions) error) Option {
	return func(qo *QueryOptions) error {
		if qo.Supported&capability != capability {
			return ErrQueryNotSupported
		}
		return apply(qo)
	}
}

func WithDirection(val Ordering) Option {
	return requires(CanSortBy, func(qo *QueryOptions) error {
		qo.SortBy = val
		return nil
	})
}

func WithLimit(val uint64) Option {
	return requires(CanLimitResults, func(qo *QueryOptions) error {
		qo.Limit = val
		return nil
	})
}

// WithCursor resumes paging after the record the cursor points to. An empty
// cursor starts from the beginning.
func WithCursor(val []byte) Option {
	return requires(CanQueryByCursor, func(qo *QueryOptions) error {
		if len(val) != 0 && len(val) != cursorSize {
			return ErrQueryNotSupported
		}
		qo.Cursor = val
		return nil
	})
}

// DefaultPaginationHandler resolves opts on top of ascending order and the
// maximum limit. Zero limits and limits above the maximum are rejected.
func DefaultPaginationHandler(opts ...Option) (*QueryOptions, error) {
	req := &QueryOptions{
		Supported: CanLimitResults | CanSortBy | CanQueryByCursor,
		SortBy:    Ascending,
		Limit:     maxPagingLimit,
	}
	if err := req.Apply(opts...); err != nil {
		return nil, err
	}

	if req.Limit == 0 || req.Limit > maxPagingLimit {
		return nil, ErrQueryNotSupported
	}
	return req, nil
}
