package link

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/bleframe/limits"
)

var (
	// ErrRecordTooLarge indicates a wire record exceeds the chunk limit plus
	// cipher overhead.
	ErrRecordTooLarge = errors.New("noise record too large")
)

// noiseOverhead is the Poly1305 tag added to each encrypted record.
const noiseOverhead = 16

// maxRecordSize bounds a single length-prefixed wire record.
const maxRecordSize = limits.MaxChunkSize + noiseOverhead

// NoiseRole defines whether this side initiates or responds to the
// handshake.
type NoiseRole uint8

const (
	// NoiseInitiator starts the handshake and must know the peer's static
	// public key.
	NoiseInitiator NoiseRole = iota
	// NoiseResponder answers the handshake.
	NoiseResponder
)

// noiseSuite is the cipher suite for link encryption. IK provides mutual
// authentication: the initiator proves knowledge of the responder's static
// key in the first message.
func noiseSuite() noise.CipherSuite {
	return noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
}

// GenerateNoiseKeypair creates a fresh Curve25519 static keypair for link
// encryption.
func GenerateNoiseKeypair() (noise.DHKey, error) {
	return noiseSuite().GenerateKeypair(rand.Reader)
}

// NoiseLink wraps a reliable byte connection with Noise-IK encryption and
// presents it as a chunk Link. Each plaintext chunk travels as one
// length-prefixed encrypted record, so chunk boundaries survive the wire
// exactly; ordering and loss-freedom are inherited from the underlying
// connection.
type NoiseLink struct {
	conn net.Conn

	sendMu     sync.Mutex
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	peerStatic []byte

	mu           sync.Mutex
	subscribed   bool
	disconnected bool
}

// NewNoiseLink performs the IK handshake over conn and returns the encrypted
// link. staticKey is this side's long-term keypair. peerPublic is the
// responder's static public key (32 bytes), required for the initiator and
// ignored for the responder. The handshake runs synchronously; conn deadlines
// may be used to bound it.
func NewNoiseLink(conn net.Conn, staticKey noise.DHKey, peerPublic []byte, role NoiseRole) (*NoiseLink, error) {
	if role == NoiseInitiator && len(peerPublic) != 32 {
		return nil, fmt.Errorf("initiator requires peer public key (32 bytes), got %d", len(peerPublic))
	}

	config := noise.Config{
		CipherSuite:   noiseSuite(),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     role == NoiseInitiator,
		StaticKeypair: staticKey,
	}
	if role == NoiseInitiator {
		config.PeerStatic = peerPublic
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	l := &NoiseLink{conn: conn}
	if err := l.runHandshake(state, role); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewNoiseLink",
		"role":     role,
		"remote":   conn.RemoteAddr(),
	}).Info("Noise link established")

	return l, nil
}

// runHandshake executes the two-message IK exchange and captures the cipher
// states.
func (l *NoiseLink) runHandshake(state *noise.HandshakeState, role NoiseRole) error {
	if role == NoiseInitiator {
		// -> e, es, s, ss
		msg, _, _, err := state.WriteMessage(nil, nil)
		if err != nil {
			return fmt.Errorf("initiator write failed: %w", err)
		}
		if err := l.writeRecord(msg); err != nil {
			return err
		}

		// <- e, ee, se
		response, err := l.readRecord()
		if err != nil {
			return err
		}
		_, recvCipher, sendCipher, err := state.ReadMessage(nil, response)
		if err != nil {
			return fmt.Errorf("initiator read response failed: %w", err)
		}
		l.recvCipher = recvCipher
		l.sendCipher = sendCipher
	} else {
		initial, err := l.readRecord()
		if err != nil {
			return err
		}
		if _, _, _, err := state.ReadMessage(nil, initial); err != nil {
			return fmt.Errorf("responder read failed: %w", err)
		}

		msg, sendCipher, recvCipher, err := state.WriteMessage(nil, nil)
		if err != nil {
			return fmt.Errorf("responder write failed: %w", err)
		}
		if err := l.writeRecord(msg); err != nil {
			return err
		}
		l.sendCipher = sendCipher
		l.recvCipher = recvCipher
	}

	l.peerStatic = append([]byte(nil), state.PeerStatic()...)
	return nil
}

// PeerStaticKey returns the authenticated static public key of the peer.
func (l *NoiseLink) PeerStaticKey() []byte {
	return append([]byte(nil), l.peerStatic...)
}

// Send encrypts one chunk as one wire record. The receiving side delivers it
// as a single chunk with identical boundaries.
func (l *NoiseLink) Send(chunk []byte) error {
	if err := limits.ValidateChunkSize(chunk); err != nil {
		return err
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	ciphertext, err := l.sendCipher.Encrypt(nil, nil, chunk)
	if err != nil {
		return fmt.Errorf("failed to encrypt chunk: %w", err)
	}
	return l.writeRecord(ciphertext)
}

// Subscribe starts the decrypting read loop. Only one subscription is
// accepted.
func (l *NoiseLink) Subscribe(onChunk ChunkHandler, onClosed ClosedHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disconnected {
		return ErrLinkClosed
	}
	if l.subscribed {
		return ErrAlreadySubscribed
	}
	l.subscribed = true

	go l.readLoop(onChunk, onClosed)
	return nil
}

// readLoop decrypts records into chunks until the connection ends.
func (l *NoiseLink) readLoop(onChunk ChunkHandler, onClosed ClosedHandler) {
	for {
		record, err := l.readRecord()
		if err != nil {
			l.mu.Lock()
			deliberate := l.disconnected
			l.mu.Unlock()
			if deliberate {
				return
			}

			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Info("Noise link terminated")

			if onClosed != nil {
				onClosed(err)
			}
			return
		}

		chunk, err := l.recvCipher.Decrypt(nil, nil, record)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Error("Failed to decrypt record, closing link")

			l.conn.Close()
			if onClosed != nil {
				onClosed(fmt.Errorf("record decryption failed: %w", err))
			}
			return
		}

		onChunk(chunk)
	}
}

// Disconnect closes the connection. Idempotent; the closed handler is not
// invoked for a local disconnect.
func (l *NoiseLink) Disconnect() error {
	l.mu.Lock()
	if l.disconnected {
		l.mu.Unlock()
		return nil
	}
	l.disconnected = true
	l.mu.Unlock()

	return l.conn.Close()
}

// writeRecord frames data with a 4-byte big-endian length prefix.
func (l *NoiseLink) writeRecord(data []byte) error {
	if len(data) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(data))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := l.conn.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if _, err := l.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write record body: %w", err)
	}
	return nil
}

// readRecord reads one length-prefixed record from the connection.
func (l *NoiseLink) readRecord() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(l.conn, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, length)
	}

	record := make([]byte, length)
	if _, err := io.ReadFull(l.conn, record); err != nil {
		return nil, err
	}
	return record, nil
}
