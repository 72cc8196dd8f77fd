package ftms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/szymek156/velomania-go/internal/telemetry"
)

// DialOptions configures peripheral discovery (spec §4.5).
type DialOptions struct {
	// ServiceUUID is the target Fitness Machine service to scan for.
	// Defaults to ServiceUUID (0x1826) when zero-valued.
	ServiceUUID bluetooth.UUID

	// NameFilter, if non-empty, restricts candidates to devices whose
	// advertised local name contains this substring (spec §4.5:
	// "optionally filter by local name (configurable policy)"; resolved
	// open question: unset by default, grounded on
	// original_source/src/ble_client.rs's default scan-all behavior).
	NameFilter string

	// ConnectTimeout bounds the whole scan+connect+discover sequence
	// (spec §5: "connect SHOULD have an application-level timeout,
	// recommended 30s").
	ConnectTimeout time.Duration
}

func (o DialOptions) serviceUUID() bluetooth.UUID {
	if o.ServiceUUID == (bluetooth.UUID{}) {
		return ServiceUUID
	}
	return o.ServiceUUID
}

func (o DialOptions) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return 30 * time.Second
	}
	return o.ConnectTimeout
}

// session implements the Fitness Machine session algorithm (spec §4.5)
// against the bleAdapter seam: scan, filter, connect, discover services,
// verify the target service is present.
type session struct {
	adapter bleAdapter
	opts    DialOptions
}

// scanAndConnect runs the spec §4.5 algorithm and returns a connected
// device whose services have been discovered, plus the matched service.
// Scanning is only ever stopped once a candidate has connected and had the
// target service verified present: a candidate that fails to connect, or
// that connects but lacks the target service, is disconnected and the same
// still-running scan simply keeps delivering further candidates to this
// same callback (spec §4.5: "if absent, disconnect and resume scanning").
func (s *session) scanAndConnect(ctx context.Context) (device, service, error) {
	type found struct {
		dev device
		svc service
	}

	resultCh := make(chan found, 1)
	errCh := make(chan error, 1)

	filterUUIDs := []bluetooth.UUID{s.opts.serviceUUID(), ServiceHeartRateCadence, ServicePower}
	target := s.opts.serviceUUID()

	go func() {
		err := s.adapter.Scan(func(candidate scanCandidate) {
			if !s.matches(candidate) {
				return
			}

			dev, err := s.adapter.Connect(candidate.Address)
			if err != nil {
				// This candidate failed to connect; the scan was never
				// stopped, so it is still running and will keep offering
				// further candidates.
				return
			}

			services, err := dev.DiscoverServices(filterUUIDs)
			if err != nil {
				_ = dev.Disconnect()
				return
			}

			for _, svc := range services {
				if svc.UUID() == target {
					_ = s.adapter.StopScan()
					select {
					case resultCh <- found{dev: dev, svc: svc}:
					default:
					}
					return
				}
			}

			// Target service absent: disconnect and keep scanning for
			// another candidate (spec §4.5).
			_ = dev.Disconnect()
		})
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case f := <-resultCh:
		return f.dev, f.svc, nil
	case err := <-errCh:
		return nil, nil, fmt.Errorf("ble scan: %w", err)
	case <-ctx.Done():
		_ = s.adapter.StopScan()
		return nil, nil, fmt.Errorf("ble scan: %w", ctx.Err())
	}
}

func (s *session) matches(candidate scanCandidate) bool {
	if !candidate.HasServiceUUID(s.opts.serviceUUID()) {
		return false
	}
	if s.opts.NameFilter == "" {
		return true
	}
	return containsFold(candidate.LocalName, s.opts.NameFilter)
}

// containsFold is a case-insensitive substring match (spec §4.5: "optionally
// filter by local name"), built on stdlib strings rather than hand-rolled.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Dial brings up the system BLE adapter, scans for a peripheral offering
// the FTMS service, connects, and returns a fully constructed Driver
// (spec §4.5 and §4.6 construction sequence). Construction fails if
// discovery/connect times out or any mandatory characteristic is absent.
func Dial(ctx context.Context, opts DialOptions) (*Driver, error) {
	ctx, span := telemetry.StartSpan(ctx, "ftms.Dial")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()

	if err := bluetooth.DefaultAdapter.Enable(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	s := &session{adapter: WrapAdapter(bluetooth.DefaultAdapter), opts: opts}
	dev, svc, err := s.scanAndConnect(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return newDriver(dev, svc)
}
