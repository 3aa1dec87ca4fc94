package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeError(t *testing.T) {
	assert.Nil(t, NewError(nil, CouldNotExecExitCode))

	base := pkgerrors.New("no such file")
	err := NewError(base, CouldNotExecExitCode)
	assert.Equal(t, CouldNotExecExitCode, err.GetExitCode())
	assert.Equal(t, CouldNotExecExitCode, GetExitCode(err))
	assert.Equal(t, base, pkgerrors.Cause(err))
	assert.Contains(t, err.Error(), "no such file")

	assert.Equal(t, ExitCode(0), GetExitCode(nil))
	assert.Equal(t, GenericFailureExitCode, GetExitCode(base))
}
