package errors_test

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapMessage(t *testing.T) {
	err := errors.New().Wrap(errors.ErrTransport, io.ErrUnexpectedEOF)

	assert.Equal(t, errors.ErrTransport, err.Code())
	assert.Equal(t, "Feed request failed: unexpected EOF", err.Error())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestWithData(t *testing.T) {
	err := errors.New().WithData(errors.ErrParseLine, "12:00 x")

	assert.Equal(t, "Malformed meter log line: 12:00 x", err.Error())
	assert.Equal(t, "12:00 x", err.GetData())
}

func TestHasCode(t *testing.T) {
	inner := errors.New().New(errors.ErrParseLine)
	outer := errors.New().Wrap(errors.ErrPollCycle, fmt.Errorf("cycle: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrPollCycle))
	assert.True(t, errors.HasCode(outer, errors.ErrParseLine))
	assert.False(t, errors.HasCode(outer, errors.ErrTransport))
	assert.False(t, errors.HasCode(io.EOF, errors.ErrParseLine))
	assert.False(t, errors.HasCode(nil, errors.ErrParseLine))
}

func TestUnknownCodeMessage(t *testing.T) {
	assert.Equal(t, "something_else", errors.GetErrorMessage("something_else"))
}

func TestErrorConcurrentFormatting(t *testing.T) {
	err := errors.New().Wrap(errors.ErrTransport, io.EOF)

	var wg sync.WaitGroup
	got := make([]string, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = err.Error()
		}(i)
	}
	wg.Wait()

	for _, msg := range got {
		assert.Equal(t, "Feed request failed: EOF", msg)
	}
}
