package contract

import (
	"fmt"
	"strings"
)

// UnknownCode is the reserved code for categories not seen at training time.
const UnknownCode = -1

// Encoder is a frozen category -> code table. Codes are positions in the label list.
type Encoder struct {
	labels []string
	codes  map[string]int
}

func NewEncoder(labels []string) (*Encoder, error) {
	e := &Encoder{
		labels: make([]string, len(labels)),
		codes:  make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		l = strings.TrimSpace(l)
		if _, dup := e.codes[l]; dup {
			return nil, fmt.Errorf("duplicate category %q", l)
		}
		e.labels[i] = l
		e.codes[l] = i
	}
	return e, nil
}

// Encode returns the code for label, or UnknownCode and false when unseen.
func (e *Encoder) Encode(label string) (int, bool) {
	code, ok := e.codes[strings.TrimSpace(label)]
	if !ok {
		return UnknownCode, false
	}
	return code, true
}

// Decode returns the label for code.
func (e *Encoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.labels) {
		return "", false
	}
	return e.labels[code], true
}

func (e *Encoder) Len() int { return len(e.labels) }
