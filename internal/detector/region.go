package detector

import (
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// CandidateRegion is a rectangular area of a page that may contain a fixture.
type CandidateRegion struct {
	Box        utils.Box `json:"bounding_box"`
	Confidence float64   `json:"confidence"`
	Method     Method    `json:"detection_method"`
	Area       float64   `json:"area"`
}
