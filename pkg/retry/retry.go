// Package retry runs actions until they succeed or a strategy gives up.
package retry

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retry executes the provided action, potentially multiple times based off of
// the provided strategies. It blocks until the action succeeds, or until one
// of the strategies indicates no further attempts should be made. The number
// of attempts is returned along with the last error.
//
// Strategies are evaluated in order after every failed attempt, so ones that
// sleep should be specified last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for attempt := uint(1); ; attempt++ {
		err := action()
		if err == nil {
			return attempt, nil
		}

		for _, shouldRetry := range strategies {
			if !shouldRetry(attempt, err) {
				return attempt, err
			}
		}
	}
}
