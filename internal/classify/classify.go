package classify

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

type textRule struct {
	status   Status
	patterns []string
}

// textRules are checked in order. Invalid and inactive come before active so
// that "not eligible" and "inactive" never read as "eligible" or "active".
var textRules = []textRule{
	{Invalid, []string{
		"invalid/missing subscriber",
		"invalid/missing insured id",
		"birth date does not match",
		"please correct and resubmit",
		"not eligible",
		"invalid member id",
		"error",
		"incorrect",
		"invalid patient",
		"member not found",
	}},
	{MemberInactive, []string{
		"member status inactive",
		"inactive",
		"coverage inactive",
		"status: inactive",
		"member inactive",
		"coverage expired",
		"not active",
	}},
	{ActiveCoverage, []string{
		"active coverage",
		"coverage active",
		"patient eligible",
		"eligible",
		"benefits available",
		"valid coverage",
		"approved",
		"coverage is active",
	}},
}

type colorBucket struct {
	status Status
	colors []string
}

// colorBuckets are checked in order; the first bucket holding a similar color wins.
var colorBuckets = []colorBucket{
	{ActiveCoverage, []string{
		"#90EE90", "#98FB98", "#00FF00", "#32CD32", "#228B22",
		"#008000", "#00C851", "#4CAF50", "#D4EDDA", "#DFF0D8",
		"#007BFF", "#0056B3", "#004085", "#CCE5FF", "#B3D9FF",
		"#E3F2FD", "#BBDEFB", "#90CAF9", "#64B5F6", "#42A5F5",
	}},
	{MemberInactive, []string{
		"#FF0000", "#DC3545", "#C82333", "#BD2130", "#B52D3A",
		"#A71E2A", "#8B0000", "#CD5C5C", "#F8D7DA", "#F5C6CB",
		"#FFEBEE", "#FFCDD2", "#EF9A9A", "#E57373", "#EF5350",
	}},
	{Invalid, []string{
		"#FFCEAA", "#FFD4AA", "#F0E68C", "#FFE4B5", "#FFEAA7",
		"#FFF2CC", "#FFFACD", "#FFFFE0", "#FFFFF0", "#FDF5E6",
		"#FAF0E6", "#FFEFD5", "#FFE4E1",
	}},
}

// ColorTolerance is the largest summed per-channel distance still counted as similar.
const ColorTolerance = 30

// ClassifyText matches text against the pattern tables, ignoring case.
func ClassifyText(text string) (Verdict, bool) {
	lower := strings.ToLower(text)
	for _, rule := range textRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return newVerdict(rule.status, ByText, text), true
			}
		}
	}
	return Verdict{}, false
}

// ClassifyColor buckets a #RRGGBB color. An empty or unparsable color never classifies.
func ClassifyColor(hex string) (Verdict, bool) {
	if hex == "" {
		return Verdict{}, false
	}
	for _, b := range colorBuckets {
		for _, ref := range b.colors {
			if Similar(hex, ref, ColorTolerance) {
				v := newVerdict(b.status, ByColor, "")
				v.BackgroundHex = hex
				return v, true
			}
		}
	}
	return Verdict{}, false
}

// Classify applies text first and color second to one rendered element.
func Classify(text, backgroundColor string) (Verdict, bool) {
	hex := NormalizeColor(backgroundColor)
	v, ok := ClassifyText(text)
	if !ok {
		v, ok = ClassifyColor(hex)
	}
	if !ok {
		return Verdict{}, false
	}
	v.Message = text
	v.BackgroundColor = backgroundColor
	v.BackgroundHex = hex
	return v, true
}

// Similar reports whether two hex colors are within tolerance, measured as
// the sum of absolute channel differences.
func Similar(a, b string, tolerance int) bool {
	ra, ga, ba, err := channels(a)
	if err != nil {
		return false
	}
	rb, gb, bb, err := channels(b)
	if err != nil {
		return false
	}
	return abs(ra-rb)+abs(ga-gb)+abs(ba-bb) <= tolerance
}

func channels(hex string) (r, g, b int, err error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, err
	}
	r8, g8, b8 := c.RGB255()
	return int(r8), int(g8), int(b8), nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// NormalizeColor converts a computed CSS color ("rgb(r, g, b)",
// "rgba(r, g, b, a)" or "#rrggbb") to upper-case "#RRGGBB". Transparent and
// unparsable colors normalize to "".
func NormalizeColor(css string) string {
	css = strings.TrimSpace(strings.ToLower(css))
	if css == "" || css == "transparent" {
		return ""
	}
	if strings.HasPrefix(css, "#") {
		c, err := colorful.Hex(css)
		if err != nil {
			return ""
		}
		return strings.ToUpper(c.Hex())
	}

	var body string
	switch {
	case strings.HasPrefix(css, "rgba(") && strings.HasSuffix(css, ")"):
		body = css[len("rgba(") : len(css)-1]
	case strings.HasPrefix(css, "rgb(") && strings.HasSuffix(css, ")"):
		body = css[len("rgb(") : len(css)-1]
	default:
		return ""
	}
	parts := strings.Split(body, ",")
	if len(parts) < 3 {
		return ""
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return ""
		}
		rgb[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	if len(parts) >= 4 {
		if a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil && a == 0 {
			return ""
		}
	}
	return fmt.Sprintf("#%02X%02X%02X", rgb[0], rgb[1], rgb[2])
}
