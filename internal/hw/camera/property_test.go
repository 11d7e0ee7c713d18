package camera

import (
	"errors"
	"testing"
)

func TestProperties_Vocabulary(t *testing.T) {
	props := Properties()
	if len(props) != 11 {
		t.Fatalf("expected 11 universal properties, got %d", len(props))
	}
	for _, p := range props {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	props[0] = "tampered"
	if Properties()[0] != ExposureTime {
		t.Error("Properties should return a copy")
	}
}

func TestProperty_AutoCompanion(t *testing.T) {
	cases := []struct {
		p    Property
		auto Property
		ok   bool
	}{
		{ExposureTime, ExposureTimeAuto, true},
		{AcquisitionFramerate, AcquisitionFramerateAuto, true},
		{Gain, GainAuto, true},
		{Gamma, "", false},
		{GainAuto, "", false},
	}
	for _, c := range cases {
		auto, ok := c.p.AutoCompanion()
		if ok != c.ok || (ok && auto != c.auto) {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", c.p, auto, ok, c.auto, c.ok)
		}
	}
}

func TestPropertyTable_Validate(t *testing.T) {
	table := PropertyTable{}
	for _, p := range Properties() {
		table[p] = NotImplemented
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	delete(table, Gamma)
	if err := table.Validate(); err == nil {
		t.Error("a table missing gamma should not validate")
	}

	table[Gamma] = NotImplemented
	table["brightness"] = Node("Brightness")
	if err := table.Validate(); err == nil {
		t.Error("a table with an unknown key should not validate")
	}
}

func TestPropertyTable_Lookup(t *testing.T) {
	table := PropertyTable{Gain: Node("Gain"), Gamma: NotImplemented}

	acc, err := table.Lookup(Gain)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if acc.Node != "Gain" {
		t.Errorf("expected node Gain, got %q", acc.Node)
	}
	if _, err := table.Lookup(Gamma); !errors.Is(err, ErrUnsupportedProperty) {
		t.Errorf("NotImplemented property: expected ErrUnsupportedProperty, got %v", err)
	}
	if _, err := table.Lookup("exposure"); !errors.Is(err, ErrUnsupportedProperty) {
		t.Errorf("misspelled key: expected ErrUnsupportedProperty, got %v", err)
	}
}

func TestWithinFraction(t *testing.T) {
	cases := []struct {
		intended, observed interface{}
		want               bool
	}{
		{10000.0, 10400.0, true},
		{10000.0, 10600.0, false},
		{10000, 9600.0, true},
		{0, 0.0, true},
		{0, 0.001, false},
		{"BGR8", "BGR8", true},
		{"BGR8", "BayerRG8", false},
		{false, false, true},
		{true, false, false},
	}
	for _, c := range cases {
		if got := withinFraction(c.intended, c.observed, 0.05); got != c.want {
			t.Errorf("withinFraction(%v, %v) = %v, want %v", c.intended, c.observed, got, c.want)
		}
	}
}

func TestToBool_VendorEnums(t *testing.T) {
	for _, v := range []interface{}{true, "Continuous", "Once", "On"} {
		if b, ok := toBool(v); !ok || !b {
			t.Errorf("%v should read as true", v)
		}
	}
	for _, v := range []interface{}{false, "Off"} {
		if b, ok := toBool(v); !ok || b {
			t.Errorf("%v should read as false", v)
		}
	}
	if _, ok := toBool("BayerRG8"); ok {
		t.Error("a pixel format is not a boolean")
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"streaming":     TypeStreaming,
		"flir_blackfly": TypeStreaming,
		"paced":         TypePaced,
		"Thorlabs":      TypePaced,
		" tsi ":         TypePaced,
		"simulated":     TypeSimulated,
		"dummy":         TypeSimulated,
	}
	for name, want := range cases {
		got, err := ParseType(name)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %s, want %s", name, got, want)
		}
	}
	if _, err := ParseType("nikon"); err == nil {
		t.Error("unknown camera name should fail")
	}
	if _, err := ParseType(""); err == nil {
		t.Error("empty camera name should fail")
	}
}
