package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaga_Run(t *testing.T) {
	errStep := errors.New("step failed")
	errUndo := errors.New("undo failed")

	tests := []struct {
		name         string
		failAt       string
		failUndo     string
		wantCalls    []string
		wantErr      error
		wantWarnings int
	}{
		{
			name:      "all steps succeed",
			wantCalls: []string{"do:a", "do:b", "do:c"},
		},
		{
			name:      "failure compensates started steps in reverse",
			failAt:    "b",
			wantCalls: []string{"do:a", "do:b", "undo:b", "undo:a"},
			wantErr:   errStep,
		},
		{
			name:      "first step failure only compensates itself",
			failAt:    "a",
			wantCalls: []string{"do:a", "undo:a"},
			wantErr:   errStep,
		},
		{
			name:         "undo failure does not stop compensation",
			failAt:       "c",
			failUndo:     "b",
			wantCalls:    []string{"do:a", "do:b", "do:c", "undo:c", "undo:b", "undo:a"},
			wantErr:      errStep,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			s := newSaga(discardLogger())
			for _, name := range []string{"a", "b", "c"} {
				s.add(name,
					func(context.Context) error {
						calls = append(calls, "do:"+name)
						if name == tt.failAt {
							return errStep
						}
						return nil
					},
					func(context.Context) error {
						calls = append(calls, "undo:"+name)
						if name == tt.failUndo {
							return errUndo
						}
						return nil
					},
				)
			}

			warnings, err := s.run(context.Background())

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, warnings, tt.wantWarnings)
			for _, warning := range warnings {
				assert.ErrorIs(t, warning, errUndo)
			}
		})
	}
}

func TestSaga_CompensatesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var undoErr error

	s := newSaga(discardLogger())
	s.add("upload",
		func(context.Context) error {
			cancel()
			return context.Canceled
		},
		func(ctx context.Context) error {
			undoErr = ctx.Err()
			return nil
		},
	)

	_, err := s.run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, undoErr)
}

func TestSaga_SkipsMissingUndo(t *testing.T) {
	s := newSaga(discardLogger())
	s.add("no undo", func(context.Context) error { return errors.New("boom") }, nil)

	warnings, err := s.run(context.Background())

	assert.Error(t, err)
	assert.Empty(t, warnings)
}
