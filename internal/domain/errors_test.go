package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
			},
			want: "[NOT_FOUND] Resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
				Cause:   errors.New("id: 123"),
			},
			want: "[NOT_FOUND] Resource not found: id: 123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrScriptWrite("tests/a.spec.ts", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, &AppError{Code: ErrCodeScriptWrite}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &AppError{Code: ErrCodeDatabase}) {
		t.Error("errors.Is should not match a different code")
	}
	if err.Metadata["path"] != "tests/a.spec.ts" {
		t.Errorf("Metadata[path] = %v", err.Metadata["path"])
	}
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", err.HTTPStatus)
	}
}

func TestAppError_Constructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      string
		status    int
		retryable bool
	}{
		{"internal", ErrInternal(""), ErrCodeInternal, http.StatusInternalServerError, false},
		{"database", ErrDatabase(errors.New("conn reset")), ErrCodeDatabase, http.StatusInternalServerError, false},
		{"external api", ErrExternalAPI("claude", errors.New("timeout")), ErrCodeExternalAPI, http.StatusBadGateway, true},
		{"rate limited", ErrRateLimited(time.Minute), ErrCodeRateLimited, http.StatusTooManyRequests, true},
		{"generation", NewError(ErrCodeGenerationFailed, "no generator", http.StatusServiceUnavailable), ErrCodeGenerationFailed, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.status)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if tt.err.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
		})
	}

	if got := ErrInternal("").Message; got != "Internal server error" {
		t.Errorf("default message = %q", got)
	}
	if got := ErrRateLimited(30 * time.Second).RetryAfter; got != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", got)
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("consolidate: %w", ErrDatabase(errors.New("boom")))

	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("AsAppError should unwrap")
	}
	if appErr.Code != ErrCodeDatabase {
		t.Errorf("Code = %q", appErr.Code)
	}

	if _, ok := AsAppError(errors.New("plain")); ok {
		t.Error("AsAppError should reject plain errors")
	}
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{
			name: "not found",
			err:  NotFoundError("step", 7),
			want: "[NOT_FOUND] step not found: 7",
		},
		{
			name: "already exists",
			err:  AlreadyExistsError("project", "name", "Shop"),
			want: "[CONFLICT] project with name 'Shop' already exists",
		},
		{
			name: "validation",
			err:  ValidationError("action", "is required"),
			want: "[VALIDATION_ERROR] is required",
		},
		{
			name: "foreign cause",
			err: &DomainError{
				Code:    ErrCodeNotFound,
				Message: "fixture missing",
				Err:     errors.New("sql: no rows in result set"),
			},
			want: "[NOT_FOUND] fixture missing: sql: no rows in result set",
		},
		{
			name: "sentinel itself",
			err:  ErrInvalidInputVal,
			want: "[VALIDATION_ERROR] invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("DomainError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("test case", "abc")

	if err.Error() != "[NOT_FOUND] test case not found: abc" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsNotFoundError(err) {
		t.Error("IsNotFoundError should be true")
	}
	if !IsNotFoundError(fmt.Errorf("load: %w", err)) {
		t.Error("IsNotFoundError should see through wrapping")
	}
	if IsValidationError(err) {
		t.Error("IsValidationError should be false")
	}
	if err.Details["resource"] != "test case" {
		t.Errorf("Details[resource] = %v", err.Details["resource"])
	}
}

func TestAlreadyExistsError(t *testing.T) {
	err := AlreadyExistsError("fixture", "name", "login")

	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeConflict)
	}
	if !errors.Is(err, ErrAlreadyExistsVal) {
		t.Error("errors.Is(ErrAlreadyExistsVal) should be true")
	}
	if IsNotFoundError(err) {
		t.Error("IsNotFoundError should be false")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("action", "is required")

	if !IsValidationError(err) {
		t.Error("IsValidationError should be true")
	}
	if err.Details["field"] != "action" {
		t.Errorf("Details[field] = %v", err.Details["field"])
	}
	if err.Message != "is required" {
		t.Errorf("Message = %q", err.Message)
	}
	if IsValidationError(errors.New("is required")) {
		t.Error("plain errors are not validation errors")
	}
}
