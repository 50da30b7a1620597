// Package mtls builds TLS client configurations from PEM files.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientFiles names the PEM files of a TLS client
type ClientFiles struct {
	CACert     string `mapstructure:"ca_cert"`
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	ServerName string `mapstructure:"server_name"`
}

// Enabled reports whether any TLS material is configured
func (f ClientFiles) Enabled() bool {
	return f.CACert != "" || f.ClientCert != "" || f.ClientKey != ""
}

// LoadClientTLSConfig creates a TLS configuration for clients. The CA is
// optional (system roots are used without it); a client certificate needs
// both cert and key. Returns nil when nothing is configured.
func LoadClientTLSConfig(files ClientFiles) (*tls.Config, error) {
	if !files.Enabled() {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName: files.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	if files.CACert != "" {
		caCert, err := os.ReadFile(files.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		cfg.RootCAs = pool
	}

	if files.ClientCert != "" || files.ClientKey != "" {
		if files.ClientCert == "" || files.ClientKey == "" {
			return nil, fmt.Errorf("client_cert and client_key must be set together")
		}
		clientCert, err := tls.LoadX509KeyPair(files.ClientCert, files.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{clientCert}
	}

	return cfg, nil
}
