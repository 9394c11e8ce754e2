package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name       string
		fn         func() error
		wantErr    bool
		wantPanic  bool
		wantSubstr string
	}{
		{
			name:    "no panic no error",
			fn:      func() error { return nil },
			wantErr: false,
		},
		{
			name:       "plain error passes through",
			fn:         func() error { return fmt.Errorf("plain failure") },
			wantErr:    true,
			wantSubstr: "plain failure",
		},
		{
			name:       "string panic",
			fn:         func() error { panic("index out of range") },
			wantErr:    true,
			wantPanic:  true,
			wantSubstr: "panic in Fit: index out of range",
		},
		{
			name:       "error panic",
			fn:         func() error { panic(errors.New("bad split")) },
			wantErr:    true,
			wantPanic:  true,
			wantSubstr: "bad split",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("Fit", tt.fn)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSubstr)

			var panicErr *PanicError
			assert.Equal(t, tt.wantPanic, errors.As(err, &panicErr))
			if tt.wantPanic {
				assert.Equal(t, "Fit", panicErr.Stage)
				assert.Contains(t, panicErr.Stack(), "recovery_test.go")
			}
		})
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	original := fmt.Errorf("original error")

	fn := func() (err error) {
		defer Recover(&err, "Transform")
		err = original
		panic("late panic")
	}

	err := fn()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in Transform")
	assert.True(t, errors.Is(err, original))
}

func TestPanicErrorUnwrapsErrorValue(t *testing.T) {
	sentinel := errors.New("corrupt node index")
	err := SafeExecute("Unmarshal", func() error { panic(sentinel) })
	assert.True(t, errors.Is(err, sentinel))

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, sentinel, panicErr.Value)
}
