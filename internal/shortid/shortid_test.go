package shortid

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New("test-salt")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ids := []int64{0, 1, 42, 123456789, 1 << 40}
	for _, id := range ids {
		enc := c.Encode(id)
		got, err := c.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", enc, err)
		}
		if got != id {
			t.Errorf("round trip: got %d, want %d", got, id)
		}
	}
}

func TestEncodeIsDNSLabelSafe(t *testing.T) {
	c, _ := New("test-salt")
	enc := c.Encode(987654321)
	for _, r := range enc {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			t.Fatalf("encoded id %q contains non DNS-label-safe rune %q", enc, r)
		}
	}
}

func TestDecodeRejectsTamperedID(t *testing.T) {
	c, _ := New("test-salt")
	enc := c.Encode(42)

	tampered := []rune(enc)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	if _, err := c.Decode(string(tampered)); err != ErrInvalid {
		t.Fatalf("Decode(tampered) = %v, want ErrInvalid", err)
	}
}

func TestDecodeRejectsDifferentSalt(t *testing.T) {
	c1, _ := New("salt-one")
	c2, _ := New("salt-two")

	enc := c1.Encode(42)
	if _, err := c2.Decode(enc); err != ErrInvalid {
		t.Fatalf("Decode with wrong salt = %v, want ErrInvalid", err)
	}
}

func TestNewRejectsEmptySalt(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should return an error")
	}
}
