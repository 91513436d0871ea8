package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbauerster/mpb/v8"
)

func TestAuthorBarOnlyMovesForward(t *testing.T) {
	b := authorBar{p: mpb.New(mpb.WithOutput(io.Discard))}

	b.update(0, 5)
	require.NotNil(t, b.bar)
	b.update(3, 5)
	b.update(2, 5)
	b.update(1, 5)
	assert.EqualValues(t, 3, b.bar.Current())

	b.update(4, 5)
	b.update(5, 5)
	assert.EqualValues(t, 5, b.bar.Current())
	b.finish()
	assert.True(t, b.bar.Completed())
	assert.False(t, b.bar.Aborted())
}

func TestAuthorBarWithoutOutput(t *testing.T) {
	var b authorBar
	b.update(1, 2)
	assert.Nil(t, b.bar)
	b.finish()
}
