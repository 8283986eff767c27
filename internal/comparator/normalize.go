package comparator

import (
	"strings"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// transmissionSuffixes are the trailing markers Danish price lists append to
// variant names instead of filling a transmission column.
var transmissionSuffixes = map[string]model.Transmission{
	"automatik":   model.TransmissionAutomatic,
	"automatic":   model.TransmissionAutomatic,
	"automatgear": model.TransmissionAutomatic,
	"aut.":        model.TransmissionAutomatic,
	"aut":         model.TransmissionAutomatic,
	"manuel":      model.TransmissionManual,
	"manual":      model.TransmissionManual,
}

// NormalizeVariant strips a trailing transmission marker from a variant name
// and reports the transmission it implied. "Pulse Automatik" and "Pulse"
// describe the same trim level.
func NormalizeVariant(variant string) (string, model.Transmission) {
	name := strings.Join(strings.Fields(variant), " ")
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", model.TransmissionUnknown
	}

	last := strings.ToLower(fields[len(fields)-1])
	if tr, ok := transmissionSuffixes[last]; ok {
		return strings.Join(fields[:len(fields)-1], " "), tr
	}
	return name, model.TransmissionUnknown
}

// canon folds a string for comparison: lowercased with collapsed whitespace.
func canon(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
