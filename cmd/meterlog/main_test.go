package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMeterReadFailure(t *testing.T) {
	w := meterlog.NewWriter(t.TempDir())
	defer w.Close()

	err := readMeter(context.Background(), w, iotest.ErrReader(io.ErrClosedPipe))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMainLoop))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestReadMeterStreamEnded(t *testing.T) {
	w := meterlog.NewWriter(t.TempDir())
	defer w.Close()

	err := readMeter(context.Background(), w, strings.NewReader("100\n"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMainLoop))
}

func TestReadMeterCancelled(t *testing.T) {
	w := meterlog.NewWriter(t.TempDir())
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, readMeter(ctx, w, iotest.ErrReader(io.ErrClosedPipe)))
}
