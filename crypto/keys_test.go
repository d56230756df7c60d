package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTripBech32AndHex(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[0] = 0xAB
	raw[19] = 0x01
	addr := NewAddress(HolderPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, "rbt1") {
		t.Fatalf("expected rbt1 prefix, got %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode bech32: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("bech32 round trip mismatch: %x vs %x", decoded.Bytes(), addr.Bytes())
	}

	fromHex, err := DecodeAddress(addr.Hex())
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if fromHex.String() != encoded {
		t.Fatalf("hex round trip mismatch: %s vs %s", fromHex.String(), encoded)
	}
}

func TestDecodeAddressRejectsWrongLength(t *testing.T) {
	if _, err := DecodeAddress("0x0102"); err == nil {
		t.Fatalf("expected short hex address to fail")
	}
	if _, err := DecodeAddress("   "); err == nil {
		t.Fatalf("expected empty address to fail")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	raw := bytes.Repeat([]byte{0x07}, AddressLength)
	foreign := NewAddress("bc", raw).String()
	if !strings.HasPrefix(foreign, "bc1") {
		t.Fatalf("unexpected encoding %s", foreign)
	}
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatalf("expected %s to be rejected", foreign)
	}
	addr, err := DecodeAddress(NewAddress(HolderPrefix, raw).String())
	if err != nil {
		t.Fatalf("decode holder address: %v", err)
	}
	if addr.Prefix() != HolderPrefix {
		t.Fatalf("unexpected prefix %q", addr.Prefix())
	}
}

func TestNewAddressCopiesInput(t *testing.T) {
	raw := make([]byte, AddressLength)
	addr := NewAddress(HolderPrefix, raw)
	raw[0] = 0xFF
	if addr.Bytes()[0] != 0 {
		t.Fatalf("address must not alias caller slice")
	}
	if !addr.IsZero() {
		t.Fatalf("expected zero address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	addr, err := SaveToKeystore(path, key, "correct horse")
	if err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	if !addr.Equal(key.PubKey().Address()) {
		t.Fatalf("unexpected address returned")
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !loaded.PubKey().Address().Equal(addr) {
		t.Fatalf("loaded key derives a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
