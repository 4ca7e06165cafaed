package dht

import "testing"

func TestParseIdentifier_RoundTrip(t *testing.T) {
	var want Identifier
	for i := range want {
		want[i] = byte(i)
	}
	got, err := ParseIdentifier(want.String())
	if err != nil {
		t.Fatalf("ParseIdentifier: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseIdentifier_0xPrefix(t *testing.T) {
	id, err := ParseIdentifier("0x" + ZeroID.String())
	if err != nil {
		t.Fatalf("ParseIdentifier: %v", err)
	}
	if !id.IsZero() {
		t.Fatalf("expected zero identifier")
	}
}

func TestParseIdentifier_WrongLength(t *testing.T) {
	if _, err := ParseIdentifier("ab"); err == nil {
		t.Fatal("expected error for short hex")
	}
}

func TestParseIdentifier_BadHex(t *testing.T) {
	if _, err := ParseIdentifier("not-hex-at-all-not-hex-at-all-xx"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestIdentifier_MarshalUnmarshalText(t *testing.T) {
	var want Identifier
	want[0] = 0xAB
	want[19] = 0xCD

	text, err := want.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Identifier
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDistance_SelfIsZero(t *testing.T) {
	var a Identifier
	a[5] = 0x42
	if !Distance(a, a).IsZero() {
		t.Fatal("distance to self should be zero")
	}
}

func TestDistance_Symmetric(t *testing.T) {
	var a, b Identifier
	a[0] = 0xFF
	b[0] = 0x0F
	if Distance(a, b).Cmp(Distance(b, a)) != 0 {
		t.Fatal("XOR distance must be symmetric")
	}
}

func TestLess(t *testing.T) {
	var a, b Identifier
	a[0] = 0x01
	b[0] = 0x02
	da, db := Distance(a, ZeroID), Distance(b, ZeroID)
	if !Less(da, db) {
		t.Fatal("expected da < db")
	}
	if Less(db, da) {
		t.Fatal("expected db >= da")
	}
}

func TestCommonPrefixLen_Identical(t *testing.T) {
	var a Identifier
	a[0] = 0x55
	if got := CommonPrefixLen(a, a); got != IDLen*8 {
		t.Fatalf("identical ids: got prefix %d, want %d", got, IDLen*8)
	}
}

func TestCommonPrefixLen_FirstBitDiffers(t *testing.T) {
	var a, b Identifier
	a[0] = 0x00
	b[0] = 0x80 // differs in the top bit
	if got := CommonPrefixLen(a, b); got != 0 {
		t.Fatalf("got prefix %d, want 0", got)
	}
}

func TestCommonPrefixLen_LastBitDiffers(t *testing.T) {
	var a, b Identifier
	b[IDLen-1] = 0x01
	if got := CommonPrefixLen(a, b); got != IDLen*8-1 {
		t.Fatalf("got prefix %d, want %d", got, IDLen*8-1)
	}
}
