package transport

import (
	"crypto/rand"
	"fmt"
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// handshakeTranscript concatenates the fields the spec requires to be
// hashed and signed (spec §4.3 steps 4-6), in a fixed field order so both
// sides compute the identical transcript.
func handshakeTranscript(initiator, responder MeshHandshake, kemCiphertext []byte) []byte {
	var buf []byte
	buf = append(buf, initiator.NodeID[:]...)
	buf = append(buf, initiator.PublicKey.SignaturePK.Bytes()...)
	buf = append(buf, initiator.PublicKey.KEMPK.Bytes()...)
	buf = append(buf, initiator.Nonce[:]...)
	buf = append(buf, responder.NodeID[:]...)
	buf = append(buf, responder.PublicKey.SignaturePK.Bytes()...)
	buf = append(buf, responder.PublicKey.KEMPK.Bytes()...)
	buf = append(buf, responder.Nonce[:]...)
	buf = append(buf, kemCiphertext...)
	return buf
}

// newNonce draws a fresh random handshake nonce.
func newNonce() ([16]byte, error) {
	var n [16]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("handshake nonce: %w", err)
	}
	return n, nil
}

// BuildHello assembles the local party's opening MeshHandshake message
// (spec §4.3 step 1).
func BuildHello(id *identity.Identity, protocols []peer.ProtocolTag, meshPort uint16) (MeshHandshake, error) {
	nonce, err := newNonce()
	if err != nil {
		return MeshHandshake{}, err
	}
	return MeshHandshake{
		NodeID:             id.IdentityID(),
		PublicKey:          id.Public,
		SupportedProtocols: protocols,
		MeshPort:           meshPort,
		Version:            ProtocolVersion,
		Nonce:              nonce,
	}, nil
}

// verifyNodeID checks step 2: the counterpart's claimed node_id equals
// hash(signature_pk).
func verifyNodeID(msg MeshHandshake) error {
	expected := identity.Id(zhtpcrypto.Sum(msg.PublicKey.SignaturePK.Bytes()))
	if expected != msg.NodeID {
		return zhtperrors.New(zhtperrors.KindAuth, "handshake node_id does not match hash(signature_pk)")
	}
	return nil
}

// InitiatorPending holds everything the initiator needs to finalize the
// handshake once the responder's transcript signature (spec §4.3 step 6,
// the fourth handshake message) arrives; it deliberately carries no
// MeshConnection, since the initiator has nothing authenticated yet.
type InitiatorPending struct {
	remote         MeshHandshake
	transcriptHash zhtpcrypto.Hash
	sharedSecret   []byte
	masterKey      []byte
	sessionID      [16]byte
}

// InitiatorResult carries the two fields the initiator must send to the
// responder as the third handshake message: the KEM ciphertext and its
// own transcript signature. The responder's connection only becomes
// authenticated after verifying Signature; the initiator's own
// connection is not yet established and requires FinalizeInitiator.
type InitiatorResult struct {
	Pending       InitiatorPending
	KEMCiphertext []byte
	Signature     []byte
}

// CompleteAsInitiator runs the initiator's half of the mutual handshake
// after receiving the responder's hello: PQK encapsulation, transcript
// derivation, and local signing (spec §4.3 steps 2-5). It does not yet
// verify the responder, since the responder hasn't signed anything at
// this point in the exchange — that happens in FinalizeInitiator, once
// the responder's signature comes back as the fourth message.
func CompleteAsInitiator(local *identity.Identity, hello MeshHandshake, remote MeshHandshake, nonces *NonceCache) (InitiatorResult, error) {
	if err := verifyNodeID(remote); err != nil {
		return InitiatorResult{}, err
	}
	if err := nonces.CheckAndConsume(remote.Nonce); err != nil {
		return InitiatorResult{}, err
	}

	ciphertext, sharedSecret, err := zhtpcrypto.Encapsulate(remote.PublicKey.KEMPK)
	if err != nil {
		return InitiatorResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "pqk encapsulate", err)
	}

	transcript := handshakeTranscript(hello, remote, ciphertext)
	transcriptHash := zhtpcrypto.Sum(transcript)

	masterKey, err := zhtpcrypto.Derive("zhtp-master", sharedSecret, []byte(hello.NodeID.DID()+remote.NodeID.DID()), 32)
	if err != nil {
		return InitiatorResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "derive master_key", err)
	}
	sessionID, err := zhtpcrypto.Derive("zhtp-session-id", transcriptHash.Bytes(), nil, 16)
	if err != nil {
		return InitiatorResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "derive session_id", err)
	}

	localSig := zhtpcrypto.Sign(local.Private.SignatureSK, transcriptHash.Bytes())

	var sid [16]byte
	copy(sid[:], sessionID)

	pending := InitiatorPending{
		remote:         remote,
		transcriptHash: transcriptHash,
		sharedSecret:   sharedSecret,
		masterKey:      masterKey,
		sessionID:      sid,
	}
	return InitiatorResult{Pending: pending, KEMCiphertext: ciphertext, Signature: localSig}, nil
}

// FinalizeInitiator consumes the responder's transcript signature (the
// fourth handshake message) and only now publishes the initiator's
// authenticated MeshConnection (spec §4.3 step 6). An empty signature is
// rejected outright rather than treated as "nothing to verify".
func FinalizeInitiator(pending InitiatorPending, responderSignature []byte) (MeshConnection, error) {
	if len(responderSignature) == 0 {
		return MeshConnection{}, zhtperrors.New(zhtperrors.KindAuth, "handshake: responder transcript signature missing")
	}
	if !zhtpcrypto.Verify(pending.remote.PublicKey.SignaturePK, pending.transcriptHash.Bytes(), responderSignature) {
		return MeshConnection{}, zhtperrors.New(zhtperrors.KindAuth, "handshake transcript signature verification failed")
	}

	return MeshConnection{
		Peer:              pending.remote.NodeID,
		ConnectedAt:       time.Now(),
		ZHTPAuthenticated: true,
		QuantumSecure:     true,
		PeerSignaturePK:   pending.remote.PublicKey.SignaturePK.Bytes(),
		SharedSecret:      pending.sharedSecret,
		SessionID:         pending.sessionID,
		MasterKey:         pending.masterKey,
	}, nil
}

// CompleteAsResponder mirrors CompleteAsInitiator from the responding
// side, decapsulating the initiator's KEM ciphertext and verifying the
// initiator's transcript signature (the third handshake message) before
// publishing its own authenticated connection (spec §4.3 steps 2-6). An
// empty signature is rejected outright. ResponderResult carries the
// signature the responder must send back as the fourth message.
type ResponderResult struct {
	Connection MeshConnection
	Signature  []byte
}

func CompleteAsResponder(local *identity.Identity, hello MeshHandshake, remote MeshHandshake, kemCiphertext []byte, initiatorSignature []byte, nonces *NonceCache) (ResponderResult, error) {
	if err := verifyNodeID(remote); err != nil {
		return ResponderResult{}, err
	}
	if err := nonces.CheckAndConsume(remote.Nonce); err != nil {
		return ResponderResult{}, err
	}
	if len(initiatorSignature) == 0 {
		return ResponderResult{}, zhtperrors.New(zhtperrors.KindAuth, "handshake: initiator transcript signature missing")
	}

	sharedSecret, err := zhtpcrypto.Decapsulate(local.Private.KEMSK, kemCiphertext)
	if err != nil {
		return ResponderResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "pqk decapsulate", err)
	}

	transcript := handshakeTranscript(remote, hello, kemCiphertext)
	transcriptHash := zhtpcrypto.Sum(transcript)

	if !zhtpcrypto.Verify(remote.PublicKey.SignaturePK, transcriptHash.Bytes(), initiatorSignature) {
		return ResponderResult{}, zhtperrors.New(zhtperrors.KindAuth, "handshake transcript signature verification failed")
	}

	masterKey, err := zhtpcrypto.Derive("zhtp-master", sharedSecret, []byte(remote.NodeID.DID()+hello.NodeID.DID()), 32)
	if err != nil {
		return ResponderResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "derive master_key", err)
	}
	sessionID, err := zhtpcrypto.Derive("zhtp-session-id", transcriptHash.Bytes(), nil, 16)
	if err != nil {
		return ResponderResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "derive session_id", err)
	}

	localSig := zhtpcrypto.Sign(local.Private.SignatureSK, transcriptHash.Bytes())

	var sid [16]byte
	copy(sid[:], sessionID)

	conn := MeshConnection{
		Peer:              remote.NodeID,
		ConnectedAt:       time.Now(),
		ZHTPAuthenticated: true,
		QuantumSecure:     true,
		PeerSignaturePK:   remote.PublicKey.SignaturePK.Bytes(),
		SharedSecret:      sharedSecret,
		SessionID:         sid,
		MasterKey:         masterKey,
	}
	return ResponderResult{Connection: conn, Signature: localSig}, nil
}
