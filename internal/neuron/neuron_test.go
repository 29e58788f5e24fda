package neuron

import "testing"

func TestUpdateTiming_NoPriorSampleStoresVerbatim(t *testing.T) {
	got := UpdateTiming(NoPriorSample, 120.0)
	if got != 120.0 {
		t.Errorf("expected 120.0, got %v", got)
	}
}

func TestUpdateTiming_WithPriorSampleAverages(t *testing.T) {
	got := UpdateTiming(100.0, 200.0)
	if got != 150.0 {
		t.Errorf("expected 150.0, got %v", got)
	}
}

func TestPropertyEqual_DifferentKindsNeverEqual(t *testing.T) {
	a := Property{Kind: PropertyString, Str: ""}
	b := Property{Kind: PropertyUint64, U64: 0}
	if a.Equal(b) {
		t.Errorf("expected properties of different kinds to be unequal")
	}
}

func TestPropertyEqual_SameKindSameValue(t *testing.T) {
	a := Property{Kind: PropertyAxon, Axon: AxonInfo{IP: "1.2.3.4", Port: 9944}}
	b := Property{Kind: PropertyAxon, Axon: AxonInfo{IP: "1.2.3.4", Port: 9944}}
	if !a.Equal(b) {
		t.Errorf("expected equal axon properties to compare equal")
	}
}
