package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NightOwlRecon/IntriCase/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.WrapError(domain.ErrCodeInvalidCredentials, "x", domain.WrapError(domain.ErrCodeHashFormat, "y", nil)), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrSessionExpired, http.StatusUnauthorized, "UNAUTHORIZED"},
		{domain.ErrInvalidOTP, http.StatusBadRequest, "INVALID_OTP"},
		{domain.ErrPasswordLength, http.StatusBadRequest, "INVALID"},
		{domain.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrDuplicateEmail, http.StatusConflict, "CONFLICT"},
		{domain.WrapError(domain.ErrCodePersistence, "db", assert.AnError), http.StatusInternalServerError, "INTERNAL"},
		{domain.NewError(domain.ErrCodeHashing, "entropy"), http.StatusInternalServerError, "INTERNAL"},
		{fmt.Errorf("plain"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, publicMessages[code])
		})
	}
}
