package vision

// Mapper converts image coordinates to robot workspace coordinates.
// Implementations must be pure: no I/O, no shared state.
type Mapper interface {
	Map(x, y float64) (float64, float64)
}

// Homography is a planar projective transform, row-major 3x3. The matrix
// comes from offline calibration; computing it is out of scope here.
type Homography [9]float64

// Map applies the transform and dehomogenizes.
func (h Homography) Map(x, y float64) (float64, float64) {
	wx := h[0]*x + h[1]*y + h[2]
	wy := h[3]*x + h[4]*y + h[5]
	w := h[6]*x + h[7]*y + h[8]
	return wx / w, wy / w
}
