// Package matutil holds the one small matrix-printing helper the
// assimilation driver uses for debug logging.
package matutil

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Format returns a formatter that renders m the way the teacher's example
// binaries print state and covariance matrices.
func Format(m mat.Matrix) fmt.Formatter {
	return mat.Formatted(m, mat.Prefix(""), mat.Squeeze())
}
