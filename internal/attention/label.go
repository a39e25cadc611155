package attention

// Label is the attention state of the subject in one image.
type Label string

const (
	Away       Label = "away"
	EyesClosed Label = "eyes_closed"
	Watching   Label = "watching"
	// NoFace is only reported when Config.ReportNoFace is set; otherwise a
	// missing face is classified as Away.
	NoFace Label = "no_face"
)

// Labels lists every label the classifier can emit.
var Labels = []Label{Away, EyesClosed, Watching, NoFace}

func (l Label) String() string {
	return string(l)
}
