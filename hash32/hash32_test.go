package hash32

import "testing"

func TestSum(t *testing.T) {
	// Double-SHA-256 of the empty string.
	want, err := Decode("5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456")
	if err != nil {
		t.Fatal(err)
	}
	if got := Sum(nil); got != want {
		t.Fatalf("Sum(nil) = %s", Encode(got))
	}
}

func TestReverse(t *testing.T) {
	var h T
	for i := range h {
		h[i] = byte(i)
	}
	r := Reverse(h)
	if r[0] != 31 || r[31] != 0 {
		t.Fatal("Reverse misordered")
	}
	if Reverse(r) != h {
		t.Fatal("double Reverse is not the identity")
	}
}

func TestEncodeDecode(t *testing.T) {
	var h T
	h[0] = 0xab
	h[31] = 0x01
	rt, err := Decode(Encode(h))
	if err != nil {
		t.Fatal(err)
	}
	if rt != h {
		t.Fatal("hex round-trip failed")
	}
	if _, err := Decode("abcd"); err == nil {
		t.Fatal("short hex accepted")
	}
}
