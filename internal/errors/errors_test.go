package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestQuiltErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *QuiltError
		contains []string
	}{
		{
			name:     "missing helper names helper and address",
			err:      MissingHelper("badge", "/r/proj/index.html", 12),
			contains: []string{"[ERR_MISSING_HELPER]", "/r/proj/index.html:12", "missing helper badge"},
		},
		{
			name:     "missing partial",
			err:      MissingPartial("/r/proj/partials/nav.html", "/r/proj/index.html", 3),
			contains: []string{"missing partial /r/proj/partials/nav.html", "/r/proj/index.html:3"},
		},
		{
			name:     "not found carries cause",
			err:      NewNotFoundError("/r/missing.html", stderrors.New("no such file")),
			contains: []string{"/r/missing.html", "resource not found", "no such file"},
		},
		{
			name:     "location without line",
			err:      NewDataError("/r/data.yml", nil),
			contains: []string{"/r/data.yml data file failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestQuiltErrorIsAndUnwrap(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := fmt.Errorf("render: %w", NewNotFoundError("/a", cause))

	assert.True(t, stderrors.Is(err, &QuiltError{Type: ErrorTypeResource, Code: ErrCodeNotFound}))
	assert.False(t, stderrors.Is(err, &QuiltError{Type: ErrorTypeParse, Code: ErrCodeParse}))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsNotFound(err))
	assert.True(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeNotFound))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewHelperLoadError("x", "/h/x.hcl", nil)))
	assert.False(t, IsRecoverable(MissingHelper("x", "/p", 1)))
	assert.False(t, IsRecoverable(stderrors.New("plain")))
}

func TestWarningCollectorConcurrentAdd(t *testing.T) {
	wc := NewWarningCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wc.Add(NewHelperLoadError(fmt.Sprintf("h%d", i), "/h", nil))
		}(i)
	}
	wg.Wait()
	wc.Add(nil)

	require.True(t, wc.HasErrors())
	assert.Len(t, wc.All(), 50)
	assert.Len(t, multierr.Errors(wc.Combined()), 50)
	assert.Len(t, wc.ForAddress("/h"), 50)
	assert.Empty(t, wc.ForAddress("/other"))
}

type recordingLogger struct {
	errors, warns []string
}

func (r *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.errors = append(r.errors, msg)
}

func (r *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.warns = append(r.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)

	h.Handle(context.Background(), nil)
	h.Handle(context.Background(), NewHelperLoadError("x", "/h", nil))
	h.Handle(context.Background(), MissingPartial("p", "/a", 1))
	h.Handle(context.Background(), stderrors.New("plain"))

	assert.Equal(t, []string{"Recoverable error"}, logger.warns)
	assert.Equal(t, []string{"Render failed", "Unhandled error occurred"}, logger.errors)
}
