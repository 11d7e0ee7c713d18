package camera

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Property is a key of the universal property vocabulary.
type Property string

// Units are the ones the gateway expects; adapters convert.
const (
	ExposureTime             Property = "exposureTime"             // µs
	ExposureTimeAuto         Property = "exposureTimeAuto"         // bool
	AcquisitionFramerate     Property = "acquisitionFramerate"     // fps
	AcquisitionFramerateAuto Property = "acquisitionFramerateAuto" // bool
	Gain                     Property = "gain"                     // dB
	GainAuto                 Property = "gainAuto"                 // bool
	PixelFormat              Property = "pixelFormat"              // string, e.g. "BayerRG8"
	GammaEnable              Property = "gammaEnable"              // bool
	Gamma                    Property = "gamma"                    // factor
	Height                   Property = "height"                   // px
	Width                    Property = "width"                    // px
)

// RGBPixelFormat is what Bayer-patterned cameras are switched to on connect.
const RGBPixelFormat = "BGR8"

// Auto is the sentinel value meaning "give control back to the camera".
const Auto = -1

var universal = []Property{
	ExposureTime,
	ExposureTimeAuto,
	AcquisitionFramerate,
	AcquisitionFramerateAuto,
	Gain,
	GainAuto,
	PixelFormat,
	GammaEnable,
	Gamma,
	Height,
	Width,
}

// Properties returns the universal vocabulary in display order.
func Properties() []Property {
	out := make([]Property, len(universal))
	copy(out, universal)
	return out
}

// Valid reports whether p belongs to the universal vocabulary.
func (p Property) Valid() bool {
	for _, u := range universal {
		if p == u {
			return true
		}
	}
	return false
}

// IsAuto reports whether p is the boolean automatic switch of another property.
// By convention it is always named after that property plus "Auto".
func (p Property) IsAuto() bool {
	return strings.HasSuffix(string(p), "Auto")
}

// AutoCompanion returns the automatic switch belonging to p, if any.
func (p Property) AutoCompanion() (Property, bool) {
	if p.IsAuto() {
		return "", false
	}
	auto := p + "Auto"
	return auto, auto.Valid()
}

// AccessKind says how an adapter reaches a property.
type AccessKind int

const (
	KindUnsupported AccessKind = iota
	KindNode                   // raw vendor node
	KindFixed                  // constant value reported by the adapter
	KindEmulated               // implemented in software by the adapter
)

// Accessor is the vendor side of one PropertyTable entry.
type Accessor struct {
	Kind    AccessKind
	Node    string      // vendor node name (KindNode)
	Value   interface{} // constant (KindFixed)
	Default interface{} // value written for Auto when the camera has no auto mode
}

// NotImplemented marks a property the camera does not support.
var NotImplemented = Accessor{Kind: KindUnsupported}

// Node maps a property to a vendor node.
func Node(name string) Accessor {
	return Accessor{Kind: KindNode, Node: name}
}

// NodeWithDefault maps a property to a vendor node that takes def when set to Auto.
func NodeWithDefault(name string, def interface{}) Accessor {
	return Accessor{Kind: KindNode, Node: name, Default: def}
}

// Fixed maps a property to a constant.
func Fixed(v interface{}) Accessor {
	return Accessor{Kind: KindFixed, Value: v}
}

// Emulated marks a property handled in software.
func Emulated() Accessor {
	return Accessor{Kind: KindEmulated}
}

// PropertyTable maps every universal property to its accessor.
type PropertyTable map[Property]Accessor

// Validate checks the table covers exactly the universal vocabulary.
func (t PropertyTable) Validate() error {
	for _, p := range universal {
		if _, ok := t[p]; !ok {
			return fmt.Errorf("property table has no entry for %s", p)
		}
	}
	for p := range t {
		if !p.Valid() {
			return fmt.Errorf("property table has unknown entry %q", p)
		}
	}
	return nil
}

// Lookup returns the accessor for p, or ErrUnsupportedProperty.
func (t PropertyTable) Lookup(p Property) (Accessor, error) {
	if !p.Valid() {
		return Accessor{}, fmt.Errorf("%w: %q is not a universal property (or you made a spelling error), available properties are %v",
			ErrUnsupportedProperty, p, universal)
	}
	acc, ok := t[p]
	if !ok || acc.Kind == KindUnsupported {
		return Accessor{}, fmt.Errorf("%w: %s is not implemented by this camera", ErrUnsupportedProperty, p)
	}
	return acc, nil
}

// Supported returns the properties the table does not mark NotImplemented.
func (t PropertyTable) Supported() []Property {
	var out []Property
	for _, p := range universal {
		if acc, ok := t[p]; ok && acc.Kind != KindUnsupported {
			out = append(out, p)
		}
	}
	return out
}

// isAutoSentinel reports whether v is the numeric Auto sentinel.
func isAutoSentinel(v interface{}) bool {
	f, ok := toFloat(v)
	return ok && f == Auto
}

// withinFraction checks observed is within fraction of intended.
// Non-numeric values and a zero intent must match exactly.
func withinFraction(intended, observed interface{}, fraction float64) bool {
	a, aok := toFloat(intended)
	b, bok := toFloat(observed)
	if !aok || !bok || a == 0 {
		return sameValue(intended, observed)
	}
	return math.Abs(b-a) < math.Abs(a)*fraction
}

// sameValue compares numbers by value regardless of their Go type.
func sameValue(a, b interface{}) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toBool interprets vendor booleans and enumerations.
func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "off", "false":
			return false, true
		case "on", "true", "continuous", "once":
			return true, true
		}
	}
	return false, false
}
