package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestCodeAndMessage(t *testing.T) {
	err := NotFound("permit", "p1")
	if Code(err) != ErrCodeNotFound {
		t.Errorf("Code = %s", Code(err))
	}
	if Message(err) == "" {
		t.Error("Message is empty")
	}

	plain := stderrors.New("boom")
	if Code(plain) != ErrCodeInternal {
		t.Errorf("Code(plain) = %s, want internal", Code(plain))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to reach database")
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("permit", "x"), http.StatusNotFound},
		{Unauthorized("not yours"), http.StatusForbidden},
		{InvalidInput("title", "required"), http.StatusBadRequest},
		{InvalidState("wrong stage"), http.StatusConflict},
		{AlreadyDecided("already approved"), http.StatusConflict},
		{New(ErrCodeConflict, "concurrent change"), http.StatusConflict},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
