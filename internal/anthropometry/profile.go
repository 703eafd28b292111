// Package anthropometry consumes facial measurement profiles and scores them
// against reference entities.
package anthropometry

// Known ratio names reported by the measurement service
const (
	RatioCephalicIndex   = "cephalic_index"
	RatioNasalIndex      = "nasal_index"
	RatioFaceWidthHeight = "facial_width_height_ratio"
	RatioJawFaceWidth    = "jaw_face_width_ratio"
)

// Profile is a measured set of facial ratios. A ratio missing from Ratios is
// unavailable, never zero.
type Profile struct {
	Ratios        map[string]float64 `json:"ratios"`
	LandmarkCount int                `json:"landmark_count"`
	Confidence    float64            `json:"confidence"`
}

// Available reports whether the extraction found any landmarks at all.
func (p *Profile) Available() bool {
	return p != nil && p.LandmarkCount > 0
}

// Ratio returns the named ratio and whether it was measured.
func (p *Profile) Ratio(name string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p.Ratios[name]
	return v, ok
}
