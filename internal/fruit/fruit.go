// Package fruit holds the fixed label set the classifier predicts and the
// static text shown next to a prediction.
package fruit

import (
	"fmt"
	"strings"
)

// Label is one of the seven fruit categories. The numeric value is the index
// of the label in the model output vector.
type Label int

const (
	Apple Label = iota
	Banana
	Grapes
	Kiwi
	Mango
	Orange
	Strawberry
)

// Count is the size of the label set.
const Count = 7

var names = [Count]string{"Apple", "Banana", "Grapes", "Kiwi", "Mango", "Orange", "Strawberry"}

// Labels returns every label in model output order.
func Labels() []Label {
	out := make([]Label, Count)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// Names returns the label names in model output order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return names[l]
}

func (l Label) Valid() bool {
	return l >= 0 && int(l) < Count
}

func (l Label) Index() int {
	return int(l)
}

// ParseLabel looks a label up by name, ignoring case.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return Label(i), nil
		}
	}
	return -1, fmt.Errorf("unknown fruit label %q", s)
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid fruit label %d", int(l))
	}
	return []byte(names[l]), nil
}

func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
