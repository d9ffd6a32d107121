package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCropcareError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CropcareError
		want string
	}{
		{
			name: "with cause",
			err:  NewError(CodeUpload, "upload crop image", errors.New("connection reset")),
			want: "[UPLOAD] upload crop image: connection reset",
		},
		{
			name: "without cause",
			err:  NewError(CodeNotFound, "analysis not found", nil),
			want: "[NOT_FOUND] analysis not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCropcareError_IsMatchesCodeSentinel(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		sentinel error
	}{
		{CodeRateLimited, ErrRateLimited},
		{CodeQuotaExceeded, ErrQuotaExceeded},
		{CodeService, ErrServiceError},
		{CodeNetwork, ErrTransientNetwork},
		{CodeStorageQuota, ErrStorageQuotaExceeded},
		{CodeValidation, ErrValidation},
		{CodeUpload, ErrUpload},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.code, "boom", nil))
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", err, tt.sentinel)
			}
			if errors.Is(err, ErrPermanentOperationFailure) {
				t.Error("errors.Is should not match an unrelated sentinel")
			}
		})
	}
}

func TestCropcareError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: no route to host")
	err := NewError(CodeNetwork, "backend unreachable", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestWithContext_NilContext(t *testing.T) {
	err := &CropcareError{Code: CodeValidation, Message: "test"}

	err = WithContext(err, "crop_type", "")

	if err.Context == nil {
		t.Fatal("Context should be initialized after WithContext")
	}
	if v, ok := err.Context["crop_type"]; !ok || v != "" {
		t.Errorf("Context[crop_type] = %v, want empty string", v)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", NewError(CodeQuotaExceeded, "q", nil))); got != CodeQuotaExceeded {
		t.Errorf("CodeOf() = %q, want %q", got, CodeQuotaExceeded)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(NewError(CodeNetwork, "down", nil)) {
		t.Error("network error should be transient")
	}
	if !IsTransient(ErrOffline) {
		t.Error("offline should be transient")
	}
	if IsTransient(NewError(CodeRateLimited, "slow down", nil)) {
		t.Error("rate limit should not be transient")
	}
}

func TestUserMessage_DistinguishesLimits(t *testing.T) {
	rate := UserMessage(NewError(CodeRateLimited, "429", nil))
	quota := UserMessage(NewError(CodeQuotaExceeded, "402", nil))
	generic := UserMessage(NewError(CodeService, "500", nil))

	if rate == quota || rate == generic || quota == generic {
		t.Errorf("messages should be distinct: %q / %q / %q", rate, quota, generic)
	}
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) should be empty")
	}
}
