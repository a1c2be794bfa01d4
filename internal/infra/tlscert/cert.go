package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names inside the certificate directory.
const (
	CertFileName = "cert.pem"
	KeyFileName  = "key.pem"
)

// Generation parameters.
const (
	KeyBits  = 2048
	Validity = 365 * 24 * time.Hour
)

// Options customizes certificate generation.
type Options struct {
	// Hostname is the subject CN and first DNS SAN. Defaults to os.Hostname.
	Hostname string

	// IPs are added as IP SANs. Defaults to the outbound LAN address.
	IPs []net.IP

	// Now overrides the clock.
	Now func() time.Time
}

// EnsureCert returns the certificate and key paths in dir, generating a
// self-signed pair when either file is missing or the certificate has
// expired.
func EnsureCert(dir string, logger *slog.Logger, opts Options) (certPath, keyPath string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	certPath = filepath.Join(dir, CertFileName)
	keyPath = filepath.Join(dir, KeyFileName)

	if exists(certPath) && exists(keyPath) {
		notAfter, err := expiry(certPath)
		if err != nil {
			return "", "", err
		}
		if opts.clock()().Before(notAfter) {
			logger.Info("using existing certificate", "cert_file", certPath, "not_after", notAfter)
			return certPath, keyPath, nil
		}
		logger.Warn("certificate expired, replacing it", "cert_file", certPath, "not_after", notAfter)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", fmt.Errorf("tlscert: create dir %s: %w", dir, err)
	}
	logger.Info("generating self-signed certificate", "dir", dir)

	certPEM, keyPEM, err := Generate(opts)
	if err != nil {
		return "", "", err
	}

	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return "", "", fmt.Errorf("tlscert: write key: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return "", "", fmt.Errorf("tlscert: write cert: %w", err)
	}

	logger.Info("certificate generated", "cert_file", certPath)
	return certPath, keyPath, nil
}

// Generate creates a PEM-encoded self-signed certificate and RSA key.
func Generate(opts Options) (certPEM, keyPEM []byte, err error) {
	hostname := opts.Hostname
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil || hostname == "" {
			hostname = "localhost"
		}
	}
	ips := opts.IPs
	if ips == nil {
		ips = lanIPs()
	}
	now := opts.clock()

	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("tlscert: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("tlscert: serial: %w", err)
	}

	dnsNames := []string{hostname}
	if hostname != "localhost" {
		dnsNames = append(dnsNames, "localhost")
	}

	start := now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostname},
		NotBefore:             start,
		NotAfter:              start.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("tlscert: create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}

// lanIPs finds the address used for outbound traffic. Connecting a UDP
// socket sends nothing.
func lanIPs() []net.IP {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return []net.IP{}
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return []net.IP{}
	}
	return []net.IP{addr.IP}
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// expiry returns NotAfter of the first certificate in path.
func expiry(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("tlscert: read %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return time.Time{}, fmt.Errorf("tlscert: %s: no CERTIFICATE block", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("tlscert: parse %s: %w", path, err)
	}
	return cert.NotAfter, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
