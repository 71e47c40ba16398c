package vision

import "errors"

// Source produces centroids from a fresh camera capture. The capture
// pipeline itself (camera, thresholding, contours) lives outside this
// module; implementations may fail and callers retry per their policy.
type Source interface {
	CaptureAndFindCentroids() ([]Centroid, error)
}

// StaticSource serves a fixed point set, optionally failing first. Used
// for bring-up without a camera and in tests.
type StaticSource struct {
	Points   []Centroid
	FailNext int // number of captures to fail before succeeding
	Err      error
}

func (s *StaticSource) CaptureAndFindCentroids() ([]Centroid, error) {
	if s.FailNext > 0 {
		s.FailNext--
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, errors.New("capture failed")
	}
	out := make([]Centroid, len(s.Points))
	copy(out, s.Points)
	return out, nil
}
