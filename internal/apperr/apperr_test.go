package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeNotYourTurn, "player bob tried to roll out of turn")
	assert.True(t, errors.Is(err, ErrNotYourTurn))
	assert.False(t, errors.Is(err, ErrDieNotRolled))

	wrapped := fmt.Errorf("roll: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotYourTurn))
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrRoomNotFound, KindNotFound},
		{ErrRoomFull, KindConflict},
		{ErrInvalidGameType, KindInvalidInput},
		{ErrIllegalCardPlay, KindIllegalAction},
		{ErrBadPassword, KindIllegalAction},
		{Wrap(CodePersistenceUnavailable, "save", errors.New("disk")), KindPersistenceUnavailable},
		{context.DeadlineExceeded, KindPersistenceUnavailable},
		{errors.New("boom"), KindInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, CodeIllegalMove, From(ErrIllegalMove).Code)
	assert.Equal(t, CodePersistenceUnavailable, From(fmt.Errorf("get: %w", context.DeadlineExceeded)).Code)
	assert.Equal(t, CodeInternal, From(errors.New("boom")).Code)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, KindIllegalAction.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, KindPersistenceUnavailable.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodePersistenceUnavailable, "load room", errors.New("timeout"))
	assert.Equal(t, "load room: timeout", err.Error())
	assert.Equal(t, "timeout", errors.Unwrap(err).Error())
}
