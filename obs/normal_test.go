package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRejectsNonPositiveStdDev(t *testing.T) {
	assert := assert.New(t)

	_, err := New(1.0, 0)
	assert.ErrorIs(err, ErrNonPositiveStdDev)

	_, err = New(1.0, -1)
	assert.ErrorIs(err, ErrNonPositiveStdDev)
}

func TestNewRelativeZeroObservation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewRelative(0, 0.2)
	assert.ErrorIs(err, ErrNonPositiveStdDev)
}

func TestPdfPeaksAtMean(t *testing.T) {
	assert := assert.New(t)

	n, err := New(2.0, 0.5)
	assert.NoError(err)

	assert.Greater(n.Pdf(2.0), n.Pdf(2.5))
	assert.Greater(n.Pdf(2.0), n.Pdf(1.5))
	assert.InDelta(n.Pdf(1.5), n.Pdf(2.5), 1e-9)
}
