package liveness

// FailReason names the rule that rejected a flash cycle.
type FailReason string

const (
	ReasonNone          FailReason = ""
	ReasonTooBrightEnv  FailReason = "Too Bright Env" // dark phase never got dark: lit screen or strong ambient
	ReasonGlare         FailReason = "Glare Detected" // specular highlights: glossy print or display
	ReasonNoReflection  FailReason = "No Reflection"  // no response to the flash
	ReasonTooReflective FailReason = "Too Reflective" // response too strong for a face of that shape
	ReasonFlatFace      FailReason = "Flat Face"      // nose lit no more than the cheeks
)

const (
	// superRatio3D lets a clearly curved face through the reflectance rule.
	// It is a fixed value, independent of Min3DRatio.
	superRatio3D = 1.50

	// ratioBias keeps the center/edge ratio finite when the edge is black.
	ratioBias = 0.1

	// darkStart is the initial minimum of a flash cycle.
	darkStart = 255.0
)

// Extrema are the brightness extremes collected during one flash cycle.
type Extrema struct {
	MinDark   float64 `json:"min_dark"`
	MaxLight  float64 `json:"max_light"`
	MaxCenter float64 `json:"max_center"`
	MaxEdge   float64 `json:"max_edge"`
}

func freshExtrema() Extrema {
	return Extrema{MinDark: darkStart}
}

// Verdict is the outcome of evaluating one flash cycle.
type Verdict struct {
	Passed  bool       `json:"passed"`
	Reason  FailReason `json:"reason,omitempty"`
	Diff    float64    `json:"diff"`
	Ratio3D float64    `json:"ratio_3d"`
}

// Evaluate applies the decision rule to the extrema of a finished cycle.
// MinFlashDiff and MaxDarkVal come from the session's adapted thresholds,
// MaxFlashDiff and Min3DRatio from the process-wide ones. The first failing
// rule wins.
func Evaluate(ext Extrema, glare bool, session, global Thresholds) Verdict {
	diff := ext.MaxLight - ext.MinDark
	ratio := ext.MaxCenter / (ext.MaxEdge + ratioBias)

	v := Verdict{Diff: diff, Ratio3D: ratio}
	switch {
	case ext.MinDark > session.MaxDarkVal:
		v.Reason = ReasonTooBrightEnv
	case glare:
		v.Reason = ReasonGlare
	case diff < session.MinFlashDiff:
		v.Reason = ReasonNoReflection
	case diff > global.MaxFlashDiff && ratio <= superRatio3D:
		v.Reason = ReasonTooReflective
	case ratio < global.Min3DRatio:
		v.Reason = ReasonFlatFace
	default:
		v.Passed = true
	}
	return v
}
