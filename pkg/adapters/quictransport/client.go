package quictransport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"
)

// ErrFingerprintMismatch is returned when the server certificate does not
// match the pinned fingerprint.
var ErrFingerprintMismatch = errors.New("quictransport: certificate fingerprint mismatch")

// Client sends frame sets to a Receiver.
type Client struct {
	conn quic.Connection
}

// Dial connects to a Receiver. A non-empty fingerprint (hex SHA-256 of the
// server leaf certificate) pins the self-signed certificate; an empty one
// accepts any certificate.
func Dial(ctx context.Context, address, fingerprint string) (*Client, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}
	if fingerprint != "" {
		want, err := hex.DecodeString(fingerprint)
		if err != nil || len(want) != sha256.Size {
			return nil, fmt.Errorf("quictransport: invalid fingerprint %q", fingerprint)
		}
		tlsConf.VerifyPeerCertificate = func(raw [][]byte, _ [][]*x509.Certificate) error {
			if len(raw) == 0 {
				return ErrFingerprintMismatch
			}
			got := sha256.Sum256(raw[0])
			if !bytes.Equal(got[:], want) {
				return ErrFingerprintMismatch
			}
			return nil
		}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("quictransport: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one frame set on a new unidirectional stream.
func (c *Client) Send(ctx context.Context, channels [][]byte) error {
	str, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("quictransport: open stream: %w", err)
	}
	if err := WriteFrameSet(str, channels); err != nil {
		str.CancelWrite(0)
		return err
	}
	return str.Close()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(0, "")
}
