package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[MDW1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[MDW1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("host", "example.com").
				WithContext("port", 443),
			expected: "[MDW1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ErrCodeConnectionFailed, tt.err.Code)
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("database connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to store")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.Equal(t, ErrCodeConnectionFailed, appErr.Code)
	assert.ErrorIs(t, appErr, baseErr)
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "insert failed").WithContext("table", "silver_crm_customers")
	outer := Wrap(inner, ErrCodePublishFailed, "publish failed")

	assert.Equal(t, "silver_crm_customers", outer.Context["table"])
	assert.True(t, outer.Is(New(ErrCodePublishFailed, "")))
	assert.False(t, outer.Is(New(ErrCodeInternal, "")))
}

func TestStageError(t *testing.T) {
	t.Run("plain cause", func(t *testing.T) {
		err := StageError("silver.crm_customers", 2*time.Second, fmt.Errorf("boom"))
		assert.Equal(t, ErrCodeStageFailed, err.Code)
		assert.Equal(t, SeverityCritical, err.Severity)
		assert.Equal(t, "silver.crm_customers", err.Context["stage"])
		assert.Equal(t, "2s", err.Context["elapsed"])
	})

	t.Run("deadline", func(t *testing.T) {
		err := StageError("gold.fact_sales", time.Second, context.DeadlineExceeded)
		assert.Equal(t, ErrCodeTimeout, err.Code)
	})

	t.Run("keeps inner code", func(t *testing.T) {
		err := StageError("publish", time.Second, New(ErrCodeSQLTransaction, "commit failed"))
		assert.Equal(t, ErrCodeSQLTransaction, err.Code)
	})
}

func TestGetContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "x").WithContext("sql_state", "42S02")
	outer := StageError("publish", time.Millisecond, inner)

	v, ok := GetContext(outer, "sql_state")
	require.True(t, ok)
	assert.Equal(t, "42S02", v)

	_, ok = GetContext(fmt.Errorf("plain"), "sql_state")
	assert.False(t, ok)
}

func TestSQLErrorClassification(t *testing.T) {
	assert.Equal(t, ErrCodeSQLPermission, SQLError("insert failed", "INSERT", fmt.Errorf("access denied for role")).Code)
	assert.Equal(t, ErrCodeSQLTimeout, SQLError("insert failed", "INSERT", context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeSQLExecution, SQLError("insert failed", "INSERT", fmt.Errorf("syntax error")).Code)
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	config := &RetryConfig{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		RetryableError: func(err error) bool {
			return true
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still down")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeMaxRetriesExceeded, GetErrorCode(err))
}

func TestRetryNonRetryable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return New(ErrCodeConfigInvalid, "bad dsn")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestErrorCodes(t *testing.T) {
	err1 := New(ErrCodeConnectionFailed, "Test")
	assert.Equal(t, ErrCodeConnectionFailed, GetErrorCode(err1))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("regular error")))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(ValidationError("dsn", "", "empty")))
	assert.False(t, IsRecoverable(New(ErrCodeInternal, "x")))
	assert.False(t, IsRecoverable(fmt.Errorf("plain")))
}
