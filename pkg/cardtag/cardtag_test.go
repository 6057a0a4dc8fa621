package cardtag

import "testing"

type fakeCard struct {
	transmit func([]byte) ([]byte, error)
}

func (c fakeCard) Transmit(apdu []byte) ([]byte, error) { return c.transmit(apdu) }

func noProbe(apdu []byte) ([]byte, error) { return nil, errNoResponse }

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNoResponse = sentinelErr("no response")

func TestDispatchClassic1K(t *testing.T) {
	card := fakeCard{transmit: noProbe}
	tgt, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0x08})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tgt.Family != FamilyClassic1K || tgt.Classic == nil {
		t.Fatalf("Dispatch = %+v, want Classic1K with a Classic engine", tgt)
	}
}

func TestDispatchDESFire(t *testing.T) {
	card := fakeCard{transmit: noProbe}
	tgt, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0x20})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tgt.Family != FamilyDESFire || tgt.DESFire == nil {
		t.Fatalf("Dispatch = %+v, want DESFire with a DESFire engine", tgt)
	}
}

func TestDispatchUltralightCViaPredicate(t *testing.T) {
	card := fakeCard{transmit: func(apdu []byte) ([]byte, error) {
		if len(apdu) == 2 && apdu[0] == 0x1a {
			return append([]byte{0xaf}, make([]byte, 8)...), nil
		}
		return nil, errNoResponse
	}}
	tgt, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0x00})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tgt.Family != FamilyUltralightC || tgt.Ultralight == nil {
		t.Fatalf("Dispatch = %+v, want UltralightC with an Ultralight engine", tgt)
	}
	if tgt.Ultralight.Subtype() != 0 && tgt.Family != FamilyUltralightC {
		t.Fatalf("unexpected subtype wiring")
	}
}

func TestDispatchNTAG21xViaPredicateAheadOfUltralightC(t *testing.T) {
	card := fakeCard{transmit: func(apdu []byte) ([]byte, error) {
		if len(apdu) == 1 && apdu[0] == 0x60 {
			return make([]byte, 8), nil
		}
		return nil, errNoResponse
	}}
	tgt, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0x00})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tgt.Family != FamilyNTAG21x {
		t.Fatalf("Dispatch = %+v, want NTAG21x (checked ahead of Ultralight-C)", tgt)
	}
}

func TestDispatchPlainUltralightWhenNoPredicateMatches(t *testing.T) {
	card := fakeCard{transmit: noProbe}
	tgt, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0x00})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tgt.Family != FamilyUltralight {
		t.Fatalf("Dispatch = %+v, want plain Ultralight", tgt)
	}
}

func TestDispatchUnknownSignature(t *testing.T) {
	card := fakeCard{transmit: noProbe}
	_, err := Dispatch(card, TargetInfo{Modulation: ModulationTypeA, SAK: 0xef})
	if err == nil {
		t.Fatal("Dispatch with an unrecognised SAK should fail")
	}
}
