// Package result defines the validation outcome vocabulary shared by every
// trust layer (ROA, BGPsec, ASPA) and the caches that store their results.
package result

// Outcome is the result of evaluating a single trust dimension against an
// announcement. The zero value is Undefined.
type Outcome uint8

const (
	Undefined Outcome = iota
	Valid
	Invalid
	DoNotUse
	Unknown
	Unverifiable
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "VALID"
	case Invalid:
		return "INVALID"
	case Undefined:
		return "UNDEFINED"
	case DoNotUse:
		return "DONOTUSE"
	case Unknown:
		return "UNKNOWN"
	case Unverifiable:
		return "UNVERIFIABLE"
	default:
		return "UNRECOGNIZED"
	}
}

// Triple is the authoritative tri-axis validation result for an announcement.
type Triple struct {
	ROA    Outcome
	BGPsec Outcome
	ASPA   Outcome
}

// Axis identifies one of the three independent trust dimensions.
type Axis int

const (
	AxisROA Axis = iota
	AxisBGPsec
	AxisASPA
)

// Get returns the outcome stored for the given axis.
func (t Triple) Get(a Axis) Outcome {
	switch a {
	case AxisROA:
		return t.ROA
	case AxisBGPsec:
		return t.BGPsec
	case AxisASPA:
		return t.ASPA
	default:
		return Undefined
	}
}

// Set returns a copy of t with the given axis overwritten.
func (t Triple) Set(a Axis, o Outcome) Triple {
	switch a {
	case AxisROA:
		t.ROA = o
	case AxisBGPsec:
		t.BGPsec = o
	case AxisASPA:
		t.ASPA = o
	}
	return t
}

// Merge overwrites each axis of t with the corresponding axis of update,
// except where update holds DoNotUse — that axis is left untouched. It
// reports whether any axis actually changed value.
func (t Triple) Merge(update Triple) (merged Triple, changed bool) {
	merged = t
	for _, axis := range []Axis{AxisROA, AxisBGPsec, AxisASPA} {
		u := update.Get(axis)
		if u == DoNotUse {
			continue
		}
		if merged.Get(axis) != u {
			changed = true
		}
		merged = merged.Set(axis, u)
	}
	return merged, changed
}
