package matutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFormat(t *testing.T) {
	assert := assert.New(t)

	out := `⎡1.2  3.4⎤
⎣4.5  6.7⎦`
	m := mat.NewDense(2, 2, []float64{1.2, 3.4, 4.5, 6.7})

	assert.Equal(out, fmt.Sprintf("%v", Format(m)))
}
