package archive

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(s1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(s1), saltSize)
	}
	s2, _ := GenerateSalt()
	if bytes.Equal(s1, s2) {
		t.Error("two salts should differ")
	}
}

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, saltSize)
	k1 := DeriveKey("passphrase", salt)
	k2 := DeriveKey("passphrase", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt should give the same key")
	}
	if len(k1) != keySize {
		t.Errorf("key length = %d, want %d", len(k1), keySize)
	}
	if bytes.Equal(k1, DeriveKey("other", salt)) {
		t.Error("different passphrases should give different keys")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	salt, _ := GenerateSalt()
	plaintext := []byte(`{"15":{"status":"pending"}}`)

	sealed, err := Seal(plaintext, "correct horse", salt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !bytes.Equal(sealed[:saltSize], salt) {
		t.Error("sealed data should start with the salt")
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("plaintext visible in sealed data")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	sealed, _ := Seal([]byte("secret"), "right", salt)
	if _, err := Open(sealed, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestOpenTampered(t *testing.T) {
	salt, _ := GenerateSalt()
	sealed, _ := Seal([]byte("secret"), "right", salt)
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open(sealed, "right"); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestOpenTooShort(t *testing.T) {
	if _, err := Open([]byte("short"), "x"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("err = %v, want ErrCiphertextTooShort", err)
	}
}

func TestSealRejectsBadSalt(t *testing.T) {
	if _, err := Seal([]byte("x"), "p", []byte("short")); err == nil {
		t.Error("expected error for short salt")
	}
}
