package xerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CodeOfRecoversWrappedCode(t *testing.T) {
	err := Wrap(NotFound, errors.New("no such writer"))
	assert.Equal(t, NotFound, CodeOf(err))
}

func Test_CodeOfDefaultsToOperationFailedForPlainError(t *testing.T) {
	assert.Equal(t, OperationFailed, CodeOf(errors.New("boom")))
}

func Test_CodeOfOkForNilError(t *testing.T) {
	assert.Equal(t, Ok, CodeOf(nil))
}

func Test_CodeOfRecoversThroughFmtErrorfWrap(t *testing.T) {
	inner := Wrap(QosIncompatible, nil)
	wrapped := errorfWrap(inner)
	assert.Equal(t, QosIncompatible, CodeOf(wrapped))
}

func errorfWrap(err error) error {
	return fmt.Errorf("context: %w", err)
}
