package utils

// AssertType attempts to assert that the given interface argument is
// the given type parameter.
func AssertType[T any](from interface{}) (T, error) {
	var zero T
	asserted, ok := from.(T)
	if !ok {
		return zero, NewUnexpectedTypeError[T](from)
	}
	return asserted, nil
}

// MustAssertType is AssertType for wiring that is only wrong through a programming error; it
// panics on a mismatch.
func MustAssertType[T any](from interface{}) T {
	asserted, err := AssertType[T](from)
	if err != nil {
		panic(err)
	}
	return asserted
}
