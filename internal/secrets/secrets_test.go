package secrets

import (
	"errors"
	"strings"
	"testing"
)

func testKeeper(t *testing.T) *Keeper {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	k, err := NewKeeper(key)
	if err != nil {
		t.Fatalf("creating keeper: %v", err)
	}
	return k
}

func TestRoundTrip(t *testing.T) {
	k := testKeeper(t)

	// All printable ASCII, in increasing lengths.
	var sb strings.Builder
	for c := byte(0x20); c < 0x7f; c++ {
		sb.WriteByte(c)
	}
	printable := sb.String()

	for length := 1; length <= len(printable); length += 7 {
		plaintext := printable[:length]
		token, err := k.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypting %d bytes: %v", length, err)
		}
		if token == plaintext {
			t.Fatalf("token not opaque for %d bytes", length)
		}
		got, err := k.Decrypt(token)
		if err != nil {
			t.Fatalf("decrypting %d bytes: %v", length, err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch at %d bytes: got %q", length, got)
		}
	}
}

func TestEncryptNondeterministic(t *testing.T) {
	k := testKeeper(t)
	a, _ := k.Encrypt("sk-secret")
	b, _ := k.Encrypt("sk-secret")
	if a == b {
		t.Error("two encryptions of the same plaintext produced the same token")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	k := testKeeper(t)
	token, err := k.Encrypt("sk-secret")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"not base64":   "!!!not-base64!!!",
		"too short":    "AAAA",
		"wrong suffix": token[:len(token)-4] + "AAA=",
	}
	for name, bad := range cases {
		if _, err := k.Decrypt(bad); !errors.Is(err, ErrDecryption) {
			t.Errorf("%s: got %v, want ErrDecryption", name, err)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	token, err := testKeeper(t).Encrypt("sk-secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testKeeper(t).Decrypt(token); !errors.Is(err, ErrDecryption) {
		t.Errorf("got %v, want ErrDecryption", err)
	}
}

func TestNewKeeperRejectsBadKeys(t *testing.T) {
	for _, bad := range []string{"", "shortkey", "AAAA"} {
		if _, err := NewKeeper(bad); !errors.Is(err, ErrBadKey) {
			t.Errorf("NewKeeper(%q): got %v, want ErrBadKey", bad, err)
		}
	}
}
