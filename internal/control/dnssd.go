package control

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"

	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type advertised for the control
// surface, the Sound Room equivalent of the teacher's "_kiss-tnc._tcp"
// (src/dns_sd.go).
const ServiceType = "_soundroom._tcp"

// Announce advertises name on port via mDNS/DNS-SD, directly grounded on
// dns_sd_announce in src/dns_sd.go (same library, same responder-goroutine
// shape), generalized to announce the Sound Room control service instead
// of a KISS TNC.
func Announce(ctx context.Context, name string, port int, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("creating dnssd service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("creating dnssd responder: %w", err)
	}

	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("adding dnssd service: %w", err)
	}

	logger.Info("dns-sd announcing control surface", "name", name, "port", port)

	go func() {
		if err := rp.Respond(ctx); err != nil {
			logger.Error("dns-sd responder error", "err", err)
		}
	}()

	return nil
}
