// Package classify turns the portal's rendered eligibility response into a
// single verdict. The portal never returns a structured answer, so the verdict
// is read from banner text first and background color second.
package classify

// Status is the outcome of an eligibility check.
type Status string

const (
	ActiveCoverage Status = "ACTIVE_COVERAGE"
	MemberInactive Status = "MEMBER_INACTIVE"
	Invalid        Status = "INVALID"
	Unknown        Status = "UNKNOWN"
	NoResponse     Status = "NO_RESPONSE"
	Error          Status = "ERROR"
)

// Flag is the persisted tri-state: 1 active, 0 inactive, -1 everything else.
func (s Status) Flag() int {
	switch s {
	case ActiveCoverage:
		return 1
	case MemberInactive:
		return 0
	default:
		return -1
	}
}

// DetectionMethod records which signal produced a verdict.
type DetectionMethod string

const (
	ByText       DetectionMethod = "Text-based"
	ByColor      DetectionMethod = "Color-based"
	Unclassified DetectionMethod = "Unknown classification"
	NoDetection  DetectionMethod = "No detection"
	Failed       DetectionMethod = "Error"
)

// Verdict is the classified outcome of one run. Flag is always 1, 0 or -1.
type Verdict struct {
	Status          Status          `json:"status"`
	Message         string          `json:"message"`
	Flag            int             `json:"flag"`
	Success         *bool           `json:"success"`
	BackgroundColor string          `json:"background_color,omitempty"`
	BackgroundHex   string          `json:"background_hex,omitempty"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	Location        string          `json:"location"`
}

func newVerdict(s Status, method DetectionMethod, message string) Verdict {
	v := Verdict{Status: s, Flag: s.Flag(), Message: message, DetectionMethod: method}
	switch s {
	case ActiveCoverage:
		v.Success = boolPtr(true)
	case MemberInactive, Invalid, Error:
		v.Success = boolPtr(false)
	}
	return v
}

// NoResponseVerdict is returned when nothing status-like rendered in time.
func NoResponseVerdict() Verdict {
	v := newVerdict(NoResponse, NoDetection, "No eligibility response detected")
	v.Location = "none"
	return v
}

// ErrorVerdict reports a failure while reading the response.
func ErrorVerdict(err error) Verdict {
	v := newVerdict(Error, Failed, "Error checking response: "+err.Error())
	v.Location = "error"
	return v
}

func boolPtr(b bool) *bool { return &b }
