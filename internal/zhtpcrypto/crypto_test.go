package zhtpcrypto

import "testing"

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Fatalf("hash not deterministic: %s != %s", a, b)
	}
	c := Sum([]byte("world"))
	if a == c {
		t.Fatalf("distinct inputs produced equal hashes")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pk, sk, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	msg := []byte("mesh handshake transcript")
	sig := Sign(sk, msg)
	if !Verify(pk, msg, sig) {
		t.Fatalf("signature did not verify")
	}
	if Verify(pk, []byte("tampered"), sig) {
		t.Fatalf("signature verified over wrong message")
	}
}

func TestSigPublicKeyRoundTrip(t *testing.T) {
	pk, _, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	b := pk.Bytes()
	pk2, err := SigPublicKeyFromBytes(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(pk2.Bytes()) != string(b) {
		t.Fatalf("round trip mismatch")
	}
}

func TestKEMRoundTrip(t *testing.T) {
	pk, sk, err := GenerateKEMKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	ct, ssA, err := Encapsulate(pk)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	ssB, err := Decapsulate(sk, ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if string(ssA) != string(ssB) {
		t.Fatalf("shared secrets differ")
	}
}

func TestDeriveStable(t *testing.T) {
	ikm := []byte("shared-secret")
	a, err := Derive("zhtp-master", ikm, nil, 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive("zhtp-master", ikm, nil, 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("derive not deterministic")
	}
	c, _ := Derive("zhtp-app", ikm, nil, 32)
	if string(a) == string(c) {
		t.Fatalf("distinct info labels produced equal output")
	}
}
