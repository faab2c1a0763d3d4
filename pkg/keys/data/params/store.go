package params

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
)

var (
	ErrNotFound     = errors.New("market parameters not found")
	ErrStaleVersion = errors.New("market parameters version is stale")
)

// Record is the administrator controlled configuration of the market. Fee
// percentages are fractions scaled by 1e18.
type Record struct {
	FeeReceiver string

	ProtocolFeePercent *uint256.Int
	SubjectFeePercent  *uint256.Int
	ReferrerFeePercent *uint256.Int

	CurveRatio *uint256.Int

	Version       uint64
	LastUpdatedAt time.Time
}

type Store interface {
	// Get gets the current market parameters.
	//
	// ErrNotFound is returned if parameters were never stored.
	Get(ctx context.Context) (*Record, error)

	// Put stores the parameters if record.Version matches the stored version,
	// where version zero means nothing was stored yet. On success, the version
	// and update time of record are advanced.
	//
	// ErrStaleVersion is returned on a version mismatch.
	Put(ctx context.Context, record *Record) error
}

func (r *Record) Validate() error {
	if len(r.FeeReceiver) == 0 {
		return errors.New("fee receiver is required")
	}

	if r.ProtocolFeePercent == nil || r.SubjectFeePercent == nil || r.ReferrerFeePercent == nil {
		return errors.New("fee percentages are required")
	}

	if r.CurveRatio == nil || r.CurveRatio.IsZero() {
		return errors.New("curve ratio must be positive")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		FeeReceiver:        r.FeeReceiver,
		ProtocolFeePercent: cloneInt(r.ProtocolFeePercent),
		SubjectFeePercent:  cloneInt(r.SubjectFeePercent),
		ReferrerFeePercent: cloneInt(r.ReferrerFeePercent),
		CurveRatio:         cloneInt(r.CurveRatio),
		Version:            r.Version,
		LastUpdatedAt:      r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.FeeReceiver = r.FeeReceiver
	dst.ProtocolFeePercent = cloneInt(r.ProtocolFeePercent)
	dst.SubjectFeePercent = cloneInt(r.SubjectFeePercent)
	dst.ReferrerFeePercent = cloneInt(r.ReferrerFeePercent)
	dst.CurveRatio = cloneInt(r.CurveRatio)
	dst.Version = r.Version
	dst.LastUpdatedAt = r.LastUpdatedAt
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}
