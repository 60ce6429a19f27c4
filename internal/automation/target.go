package automation

// Kind is the family of UI control a Target names.
type Kind int

const (
	TypedInput Kind = iota
	SingleSelect
	SearchSelect
	Button
)

func (k Kind) String() string {
	switch k {
	case TypedInput:
		return "typed-input"
	case SingleSelect:
		return "single-select"
	case SearchSelect:
		return "search-select"
	case Button:
		return "button"
	default:
		return "unknown"
	}
}

// NoFallback disables the ordinal strategy for a Target.
const NoFallback = -1

// Target is the logical identity of a control to locate. It lives for one
// fill step and is never persisted.
type Target struct {
	Name string
	Kind Kind

	// Selectors are tried verbatim before the attribute patterns.
	Selectors []Selector
	// Patterns are id/name fragments matched with [id*=] and [name*=].
	Patterns []string

	// LabelHint is the visible label text used for proximity and text matching.
	LabelHint string
	// Container is the CSS of labeled containers searched by LabelHint.
	Container string
	// Within is the CSS of the control inside a matching container. Defaults to Family.
	Within string

	// Family is the CSS of the control family, used by the text scan and the
	// ordinal fallback.
	Family string
	// Exclude drops candidates whose id or name contains any of these fragments.
	Exclude []string
	// Expected are values the control may already display or carry.
	Expected []string

	// FallbackIndex is the 0-based ordinal among Family members, or NoFallback.
	FallbackIndex int
}

// NewTarget returns a Target with the ordinal fallback disabled.
func NewTarget(name string, kind Kind) Target {
	return Target{Name: name, Kind: kind, FallbackIndex: NoFallback}
}

func (t Target) within() string {
	if t.Within != "" {
		return t.Within
	}
	if t.Family != "" {
		return t.Family
	}
	return defaultFamily(t.Kind)
}

func (t Target) family() string {
	if t.Family != "" {
		return t.Family
	}
	return defaultFamily(t.Kind)
}

func defaultFamily(k Kind) string {
	switch k {
	case Button:
		return `button, [role="button"], input[type="submit"], a.btn`
	case SingleSelect:
		return `select, [role="combobox"], div.select2-container`
	case SearchSelect:
		return `div.select2-container, [role="combobox"], input[role="combobox"]`
	default:
		return `input:not([type="hidden"]), textarea`
	}
}
