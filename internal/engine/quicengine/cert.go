package quicengine

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// alpnProtocol is the ALPN identifier for the arkdrop QUIC protocol.
const alpnProtocol = "arkdrop-quic-v1"

// generateCert returns a fresh self-signed certificate and the SHA-256
// fingerprint of its DER encoding. The fingerprint travels in the
// locator and is what receivers trust, so the certificate itself needs
// no chain.
func generateCert() (tls.Certificate, [32]byte, error) {
	var fp [32]byte

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fp, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"arkdrop"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fp, err
	}

	fp = sha256.Sum256(certDER)
	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, fp, nil
}

// serverTLSConfig wraps the generated certificate for the listener.
func serverTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProtocol},
	}
}

// clientTLSConfig trusts exactly the certificate whose DER hashes to
// the pinned fingerprint, nothing else.
func clientTLSConfig(fingerprint [32]byte) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("quicengine: sender presented no certificate")
			}
			got := sha256.Sum256(rawCerts[0])
			if got != fingerprint {
				return fmt.Errorf("quicengine: certificate fingerprint mismatch")
			}
			return nil
		},
	}
}
