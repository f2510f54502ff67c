package utils

import (
	"reflect"

	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	return errors.Errorf("expected %s but got %T", reflect.TypeOf((*ExpectedT)(nil)).Elem(), actual)
}

// NewNonFiniteError is used when a computed quantity contains NaN or Inf.
func NewNonFiniteError(what string) error {
	return errors.Errorf("%s is not finite", what)
}
