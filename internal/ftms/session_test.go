package ftms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"
)

func TestDialOptionsServiceUUIDDefaultsToFTMS(t *testing.T) {
	var o DialOptions
	assert.Equal(t, ServiceUUID, o.serviceUUID())

	custom := bluetooth.New16BitUUID(0x1818)
	o = DialOptions{ServiceUUID: custom}
	assert.Equal(t, custom, o.serviceUUID())
}

func TestDialOptionsConnectTimeoutDefaultsTo30s(t *testing.T) {
	var o DialOptions
	assert.Equal(t, 30*time.Second, o.connectTimeout())

	o = DialOptions{ConnectTimeout: 5 * time.Second}
	assert.Equal(t, 5*time.Second, o.connectTimeout())
}

func TestContainsFoldIsCaseInsensitiveSubstringMatch(t *testing.T) {
	assert.True(t, containsFold("KICKR CORE", "kickr"))
	assert.True(t, containsFold("Wahoo KICKR", "kickr"))
	assert.False(t, containsFold("Wahoo KICKR", "tacx"))
	assert.True(t, containsFold("anything", ""))
	assert.False(t, containsFold("hi", "hello"))
}

// fakeConnectResult is the canned outcome fakeBLEAdapter.Connect returns for
// the Nth candidate it is asked to connect to, in scan order.
type fakeConnectResult struct {
	dev device
	err error
}

// fakeBLEAdapter drives scanAndConnect's callback with a fixed list of
// candidates, synchronously and in order, and hands out connectResults in
// the same order Connect is called - enough to exercise the multi-candidate
// retry path without constructing a live bluetooth.ScanResult.
type fakeBLEAdapter struct {
	candidates []scanCandidate
	results    []fakeConnectResult

	next    int
	stopped bool
}

func (a *fakeBLEAdapter) Scan(callback func(scanCandidate)) error {
	for _, c := range a.candidates {
		if a.stopped {
			break
		}
		callback(c)
	}
	return nil
}

func (a *fakeBLEAdapter) StopScan() error {
	a.stopped = true
	return nil
}

func (a *fakeBLEAdapter) Connect(bluetooth.Address) (device, error) {
	r := a.results[a.next]
	a.next++
	return r.dev, r.err
}

type fakeSessionDevice struct {
	services     []service
	disconnected bool
}

func (d *fakeSessionDevice) DiscoverServices([]bluetooth.UUID) ([]service, error) {
	return d.services, nil
}

func (d *fakeSessionDevice) Disconnect() error {
	d.disconnected = true
	return nil
}

type fakeSessionService struct{ uuid bluetooth.UUID }

func (s fakeSessionService) UUID() bluetooth.UUID { return s.uuid }

func (s fakeSessionService) DiscoverCharacteristics([]bluetooth.UUID) ([]characteristic, error) {
	return nil, nil
}

func matchAnyService(bluetooth.UUID) bool { return true }

// TestScanAndConnectRetriesAfterConnectFailure exercises the spec §4.5
// "disconnect and resume scanning" path: the first matching candidate fails
// to connect, and the session must keep scanning and succeed against the
// second candidate, stopping the scan only once the whole chain (connect ->
// discover -> verify) has succeeded.
func TestScanAndConnectRetriesAfterConnectFailure(t *testing.T) {
	okDevice := &fakeSessionDevice{services: []service{fakeSessionService{uuid: ServiceUUID}}}

	adapter := &fakeBLEAdapter{
		candidates: []scanCandidate{
			{LocalName: "first", HasServiceUUID: matchAnyService},
			{LocalName: "second", HasServiceUUID: matchAnyService},
		},
		results: []fakeConnectResult{
			{err: errors.New("connection refused")},
			{dev: okDevice},
		},
	}

	s := &session{adapter: adapter, opts: DialOptions{}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dev, svc, err := s.scanAndConnect(ctx)
	require.NoError(t, err)
	assert.Same(t, okDevice, dev)
	assert.Equal(t, ServiceUUID, svc.UUID())
	assert.True(t, adapter.stopped, "scan must stop once a candidate fully succeeds")
	assert.Equal(t, 2, adapter.next, "both candidates should have been attempted")
}

// TestScanAndConnectRetriesWhenTargetServiceAbsent exercises the other
// "disconnect and resume scanning" branch: a candidate connects but its
// services don't include the target, so it must be disconnected and
// scanning must continue to the next candidate.
func TestScanAndConnectRetriesWhenTargetServiceAbsent(t *testing.T) {
	wrongServiceDevice := &fakeSessionDevice{services: []service{fakeSessionService{uuid: bluetooth.New16BitUUID(0x1818)}}}
	okDevice := &fakeSessionDevice{services: []service{fakeSessionService{uuid: ServiceUUID}}}

	adapter := &fakeBLEAdapter{
		candidates: []scanCandidate{
			{LocalName: "first", HasServiceUUID: matchAnyService},
			{LocalName: "second", HasServiceUUID: matchAnyService},
		},
		results: []fakeConnectResult{
			{dev: wrongServiceDevice},
			{dev: okDevice},
		},
	}

	s := &session{adapter: adapter, opts: DialOptions{}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dev, svc, err := s.scanAndConnect(ctx)
	require.NoError(t, err)
	assert.Same(t, okDevice, dev)
	assert.Equal(t, ServiceUUID, svc.UUID())
	assert.True(t, wrongServiceDevice.disconnected, "a candidate without the target service must be disconnected")
}
