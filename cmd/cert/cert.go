package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "TLS certificate tools for the API server",
	}

	cmd.AddCommand(newGenCmd())
	return cmd
}

func newGenCmd() *cobra.Command {
	var outDir string
	var hostnames []string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a development CA and server certificate",
		Long: `Writes ca.crt, ca.key, server.crt and server.key into the output directory.
Point SERVER_ECHO_TLS_CERT_FILE and SERVER_ECHO_TLS_KEY_FILE at the server pair.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := Generate(outDir, hostnames); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate certificates")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "certs", "Output directory for certificates")
	cmd.Flags().StringSliceVar(&hostnames, "host", []string{"localhost", "127.0.0.1"}, "Hostnames/IPs for the server certificate")

	return cmd
}

// Generate writes a self-signed CA and a server certificate for hosts into outDir.
func Generate(outDir string, hosts []string) error {
	if len(hosts) == 0 {
		return errors.New("at least one host is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	log.Info().Msg("Generating CA certificate")
	caKey, caCert, err := generateCA()
	if err != nil {
		return err
	}
	if err := writePair(outDir, "ca", caCert.Raw, caKey); err != nil {
		return err
	}

	log.Info().Strs("hosts", hosts).Msg("Generating server certificate")
	serverKey, serverDER, err := generateServerCert(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	if err := writePair(outDir, "server", serverDER, serverKey); err != nil {
		return err
	}

	log.Info().Str("dir", outDir).Msg("Certificates generated")
	return nil
}

func generateCA() (*ecdsa.PrivateKey, *x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate CA key")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Guardian Service"},
			CommonName:   "Guardian Service Development CA",
		},
		NotBefore:             now,
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create CA certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse CA certificate")
	}
	return key, cert, nil
}

func generateServerCert(hosts []string, ca *x509.Certificate, caKey *ecdsa.PrivateKey) (*ecdsa.PrivateKey, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate server key")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Guardian Service"},
			CommonName:   hosts[0],
		},
		NotBefore:   now,
		NotAfter:    now.Add(serverValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create server certificate")
	}
	return key, der, nil
}

func writePair(dir string, name string, certDER []byte, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s key", name)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(filepath.Join(dir, name+".crt"), certPEM, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s certificate", name)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".key"), keyPEM, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write %s key", name)
	}
	return nil
}
