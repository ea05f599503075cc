package cluster

import "testing"

func TestRunIDLabelRoundTrip(t *testing.T) {
	label := runIDLabel(42)
	id, ok := parseRunIDLabel(label)
	if !ok || id != 42 {
		t.Errorf("round trip failed: label=%q id=%d ok=%v", label, id, ok)
	}
}

func TestParseRunIDLabelRejectsGarbage(t *testing.T) {
	if _, ok := parseRunIDLabel("not-a-number"); ok {
		t.Error("expected failure parsing non-numeric label")
	}
}
