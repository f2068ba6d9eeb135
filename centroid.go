package annulus

import (
	"fmt"
	"strings"

	"github.com/disk-kinematics/annulus/moments"
)

// CentroidMethod selects how per-spectrum line centers are estimated.
type CentroidMethod int

const (
	// CentroidMax takes the velocity of the brightest sample, with no
	// sub-pixel refinement.
	CentroidMax CentroidMethod = iota
	// CentroidQuadratic interpolates a parabola through the brightest
	// sample and its neighbors. Sub-pixel accurate and the preferred
	// default.
	CentroidQuadratic
	// CentroidGaussian fits a full Gaussian profile to each spectrum,
	// falling back to CentroidMax when the fit fails.
	CentroidGaussian
)

// ParseCentroidMethod maps a method name to a CentroidMethod,
// case-insensitively. Valid names are "max", "quadratic" and "gaussian".
func ParseCentroidMethod(name string) (CentroidMethod, error) {
	switch strings.ToLower(name) {
	case "max":
		return CentroidMax, nil
	case "quadratic":
		return CentroidQuadratic, nil
	case "gaussian":
		return CentroidGaussian, nil
	}
	return 0, fmt.Errorf("method %q is not 'max', 'gaussian' or 'quadratic'", name)
}

// String returns the method's canonical name.
func (m CentroidMethod) String() string {
	switch m {
	case CentroidMax:
		return "max"
	case CentroidQuadratic:
		return "quadratic"
	case CentroidGaussian:
		return "gaussian"
	}
	return fmt.Sprintf("CentroidMethod(%d)", int(m))
}

// PeakVelocities returns the line-center velocity of each spectrum,
// estimated by the given method.
func (e *Ensemble) PeakVelocities(method CentroidMethod) ([]float64, error) {
	vmax := make([]float64, len(e.spectra))
	switch method {
	case CentroidMax:
		for i, s := range e.spectra {
			vmax[i] = e.velax[argmax(s)]
		}
	case CentroidQuadratic:
		for i, s := range e.spectra {
			vmax[i], _ = moments.Quadratic(s, e.velax[0], e.channel)
		}
	case CentroidGaussian:
		for i, s := range e.spectra {
			vmax[i] = gaussianCenter(e.velax, s)
		}
	default:
		return nil, fmt.Errorf("unknown centroid method %d", int(method))
	}
	return vmax, nil
}
