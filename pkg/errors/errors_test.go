package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageFormatting(t *testing.T) {
	base := New("SOME_CODE", "something failed", http.StatusConflict)
	require.Equal(t, "something failed", base.Error())

	wrapped := base.WithInternal(fmt.Errorf("low level detail"))
	require.Equal(t, "something failed: low level detail", wrapped.Error())
	require.Equal(t, base.Code, wrapped.Code)
	// The original must stay untouched.
	require.Nil(t, base.Internal)
}

func TestFromErrorRecognisesAppErrors(t *testing.T) {
	require.Nil(t, FromError(nil))

	err := fmt.Errorf("outer: %w", ErrEventFull)
	appErr := FromError(err)
	require.Equal(t, ErrEventFull.Code, appErr.Code)
	require.Equal(t, http.StatusConflict, appErr.StatusCode)

	generic := FromError(errors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, generic.Code)
	require.EqualError(t, generic.Internal, "boom")
}

func TestUnwrapSupportsErrorsIs(t *testing.T) {
	inner := errors.New("db down")
	wrapped := Wrap(inner, "store unavailable")
	require.ErrorIs(t, wrapped, inner)
}

func TestDomainErrorStatusCodes(t *testing.T) {
	require.Equal(t, http.StatusLocked, ErrAccountLocked.StatusCode)
	require.Equal(t, http.StatusUnprocessableEntity, ErrInvitesRequired.StatusCode)
	require.Equal(t, http.StatusForbidden, ErrNotInvited.StatusCode)
	require.Equal(t, http.StatusBadRequest, ErrInvalidToken.StatusCode)
	require.Equal(t, http.StatusConflict, ErrSelfActionForbidden.StatusCode)
}
