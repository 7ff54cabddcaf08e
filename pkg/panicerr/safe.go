package panicerr

import (
	"github.com/sourcegraph/conc/panics"
)

// Safe wraps a function that returns an error, catching any panics and returning them as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeValue is Safe for functions that also return a value. On panic the
// zero value is returned together with the recovered panic as an error.
func SafeValue[T any](fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		var (
			catcher panics.Catcher
			v       T
			err     error
		)
		catcher.Try(func() {
			v, err = fn()
		})
		if r := catcher.Recovered(); r != nil {
			var zero T
			return zero, r.AsError()
		}
		return v, err
	}
}
