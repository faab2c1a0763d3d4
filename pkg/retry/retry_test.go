package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/keys-server/pkg/retry/backoff"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.calls = append(s.calls, d)
}

func withRecordingSleeper(t *testing.T) *recordingSleeper {
	s := &recordingSleeper{}
	sleeperImpl = s
	t.Cleanup(func() {
		sleeperImpl = realSleeper{}
	})
	return s
}

func TestRetry_Success(t *testing.T) {
	var calls int
	attempts, err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, Limit(5))

	assert.NoError(t, err)
	assert.EqualValues(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetry_Limit(t *testing.T) {
	expected := errors.New("always")
	attempts, err := Retry(func() error { return expected }, Limit(4))
	assert.Equal(t, expected, err)
	assert.EqualValues(t, 4, attempts)
}

func TestRetry_ErrorFilters(t *testing.T) {
	retriable := errors.New("retriable")
	fatal := errors.New("fatal")

	attempts, err := Retry(func() error { return fatal }, Limit(5), RetriableErrors(retriable))
	assert.Equal(t, fatal, err)
	assert.EqualValues(t, 1, attempts)

	attempts, err = Retry(func() error { return retriable }, Limit(5), RetriableErrors(retriable))
	assert.Equal(t, retriable, err)
	assert.EqualValues(t, 5, attempts)

	attempts, err = Retry(func() error { return fatal }, Limit(5), NonRetriableErrors(fatal))
	assert.Equal(t, fatal, err)
	assert.EqualValues(t, 1, attempts)

	attempts, err = Retry(func() error { return retriable }, Limit(3), RetriableIf(func(err error) bool {
		return err == retriable
	}))
	assert.Equal(t, retriable, err)
	assert.EqualValues(t, 3, attempts)
}

func TestRetry_Backoff(t *testing.T) {
	s := withRecordingSleeper(t)

	_, err := Retry(
		func() error { return errors.New("err") },
		Limit(4),
		Backoff(backoff.BinaryExponential(100*time.Millisecond), 250*time.Millisecond),
	)
	assert.Error(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, s.calls)
}

func TestRetry_BackoffWithJitter(t *testing.T) {
	s := withRecordingSleeper(t)

	_, err := Retry(
		func() error { return errors.New("err") },
		Limit(20),
		BackoffWithJitter(backoff.Constant(100*time.Millisecond), time.Second, 0.1),
	)
	assert.Error(t, err)
	assert.Len(t, s.calls, 19)
	for _, d := range s.calls {
		assert.True(t, d >= 90*time.Millisecond)
		assert.True(t, d <= 110*time.Millisecond)
	}
}
