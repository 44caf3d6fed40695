package server

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig loads a certificate for serving wss://
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("both certificate and key paths are required")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,

		VerifyConnection: func(cs tls.ConnectionState) error {
			logging.LogTLSHandshake(cs.ServerName, cs.Version, cs.CipherSuite, cs.ServerName)
			return nil
		},
	}, nil
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	return map[string]interface{}{
		"min_version":     tls.VersionName(config.MinVersion),
		"num_certs":       len(config.Certificates),
		"session_tickets": !config.SessionTicketsDisabled,
	}
}
