package mqttclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/vikerian/climate-loop/internal/config"
)

// newTLSConfig sestaví vzájemné TLS (klientský certifikát + root CA),
// jak ho vyžadují spravované IoT brokery.
func newTLSConfig(cfg config.MQTT) (*tls.Config, error) {
	caPEM, err := os.ReadFile(cfg.RootCAPath)
	if err != nil {
		return nil, fmt.Errorf("čtení root CA %s: %w", cfg.RootCAPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("root CA %s neobsahuje žádný PEM certifikát", cfg.RootCAPath)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("načtení klientského certifikátu: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
