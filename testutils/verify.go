package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain fails the package tests if goroutines outlive them, for example a linearization
// worker that was never joined.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m)
}
