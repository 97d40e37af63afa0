package labels

import "errors"

// Label is a research project value written to the Jira research-project field.
type Label string

const (
	NetFab              Label = "6G-NETFAB"
	Greenfield          Label = "GREENFIELD"
	Intense             Label = "INTENSE"
	NDolli              Label = "N-DOLLI"
	QuINSiDa            Label = "QuINSiDa"
	Saspit              Label = "SASPIT"
	Sustainet           Label = "SUSTAINET"
	Shinka              Label = "SHINKA"
	PartiallyAssignable Label = "PARTIALLY ASSIGNABLE"
	NotAssignable       Label = "NOT ASSIGNABLE"
)

// ErrUnknownLabel is returned when a value is not part of the closed label set.
var ErrUnknownLabel = errors.New("unknown research project")

// display order used by every front end
var all = []Label{
	NetFab,
	Greenfield,
	Intense,
	NDolli,
	QuINSiDa,
	Saspit,
	Sustainet,
	Shinka,
	PartiallyAssignable,
	NotAssignable,
}

// All returns the closed label set in display order.
func All() []Label {
	out := make([]Label, len(all))
	copy(out, all)
	return out
}

// Parse returns the label matching s exactly.
func Parse(s string) (Label, error) {
	for _, l := range all {
		if string(l) == s {
			return l, nil
		}
	}
	return "", ErrUnknownLabel
}

// Valid reports whether l is a member of the closed set.
func (l Label) Valid() bool {
	_, err := Parse(string(l))
	return err == nil
}

// IsSentinel reports whether l is one of the non-project values.
func (l Label) IsSentinel() bool {
	return l == PartiallyAssignable || l == NotAssignable
}

func (l Label) String() string {
	return string(l)
}
