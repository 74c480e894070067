package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/perfstreams/errors"
)

// generateTestCert creates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

// setupTestFiles writes cert, key and a CA file (the same self-signed cert)
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	tmpDir := t.TempDir()
	certPEM, keyPEM := generateTestCert(t)

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))
	return certFile, keyFile, caFile
}

func TestLoadClientTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadClientTLSConfig(ClientConfig{})
		require.NoError(t, err)
		assert.NotNil(t, cfg.RootCAs)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		assert.False(t, cfg.InsecureSkipVerify)
		assert.Empty(t, cfg.Certificates)
	})

	t.Run("extra CA and client cert", func(t *testing.T) {
		cfg, err := LoadClientTLSConfig(ClientConfig{
			CAFiles:    []string{caFile},
			CertFile:   certFile,
			KeyFile:    keyFile,
			MinVersion: "1.3",
		})
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
		assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	})

	t.Run("insecure", func(t *testing.T) {
		cfg, err := LoadClientTLSConfig(ClientConfig{InsecureSkipVerify: true})
		require.NoError(t, err)
		assert.True(t, cfg.InsecureSkipVerify)
	})

	t.Run("missing CA file", func(t *testing.T) {
		_, err := LoadClientTLSConfig(ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}})
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("invalid PEM", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0644))
		_, err := LoadClientTLSConfig(ClientConfig{CAFiles: []string{bad}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid PEM data")
	})

	t.Run("cert without key", func(t *testing.T) {
		_, err := LoadClientTLSConfig(ClientConfig{CertFile: certFile})
		assert.True(t, errors.IsFatal(err))
	})
}

func TestClientConfig_Configured(t *testing.T) {
	assert.False(t, ClientConfig{}.Configured())
	assert.True(t, ClientConfig{InsecureSkipVerify: true}.Configured())
	assert.True(t, ClientConfig{CAFiles: []string{"a"}}.Configured())
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	cfg, err := LoadServerTLSConfig(ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg, "disabled TLS yields no config")

	cfg, err = LoadServerTLSConfig(ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)

	cfg, err = LoadServerTLSConfig(ServerConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		ClientCAFiles: []string{caFile}, RequireClientCert: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)

	cfg, err = LoadServerTLSConfig(ServerConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		ClientCAFiles: []string{caFile},
	})
	require.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, cfg.ClientAuth)

	_, err = LoadServerTLSConfig(ServerConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile, RequireClientCert: true,
	})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = LoadServerTLSConfig(ServerConfig{Enabled: true, CertFile: "/nope", KeyFile: "/nope"})
	assert.True(t, errors.IsFatal(err))
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.0"))
}
