package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cellsys/cellsd/internal/config"
)

func writeCertKeyPair(t *testing.T, dir, prefix string, ca *x509.Certificate, caKey *ecdsa.PrivateKey, dnsName string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: dnsName},
		DNSNames:     []string{dnsName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	issuer, issuerKey := ca, caKey
	if ca == nil {
		tmpl.IsCA = true
		tmpl.KeyUsage |= x509.KeyUsageCertSign
		issuer, issuerKey = tmpl, priv
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &priv.PublicKey, issuerKey)
	if err != nil {
		t.Fatal(err)
	}

	certPath = filepath.Join(dir, prefix+".crt")
	keyPath = filepath.Join(dir, prefix+".key")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestListenAndDial_MutualTLSHandshake(t *testing.T) {
	dir := t.TempDir()

	caCertPath, caKeyPath := writeCertKeyPair(t, dir, "ca", nil, nil, "test-ca")
	caPEM, err := os.ReadFile(caCertPath)
	if err != nil {
		t.Fatal(err)
	}
	caKeyPEM, err := os.ReadFile(caKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	caCertDER, _ := pem.Decode(caPEM)
	caCert, err := x509.ParseCertificate(caCertDER.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	caKeyDER, _ := pem.Decode(caKeyPEM)
	caKey, err := x509.ParseECPrivateKey(caKeyDER.Bytes)
	if err != nil {
		t.Fatal(err)
	}

	serverCert, serverKey := writeCertKeyPair(t, dir, "server", caCert, caKey, "server.unsafe.cellsd.io")
	clientCert, clientKey := writeCertKeyPair(t, dir, "client", caCert, caKey, "client")

	cfg := &config.Config{
		Auth: config.Auth{CACertPath: caCertPath, ServerCertPath: serverCert, ServerKeyPath: serverKey},
		System: config.System{
			SocketPath: filepath.Join(dir, "test.sock"),
			ServerName: "server.unsafe.cellsd.io",
		},
	}

	ln, err := Listen(cfg)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, err = conn.Read(buf)
		accepted <- err
	}()

	conn, err := Dial(cfg.System.SocketPath, DialerConfig{
		CACertPath:     caCertPath,
		ClientCertPath: clientCert,
		ClientKeyPath:  clientKey,
		ServerName:     "server.unsafe.cellsd.io",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case err := <-accepted:
		if err != nil {
			t.Fatalf("server-side read failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to accept/read")
	}
}
