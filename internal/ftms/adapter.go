package ftms

import "tinygo.org/x/bluetooth"

// characteristic is the seam of DeviceCharacteristic methods this package
// uses (spec §4.5 `[EXPANDED]`: "a small adapter/device/characteristic
// interface seam ... sits directly on top of the library's concrete
// types"). It lets the package's tests (driver_test.go via mock.go,
// session_test.go) exercise decode/control logic against in-memory fakes
// while the production Dial path always wraps the real
// tinygo.org/x/bluetooth types.
type characteristic interface {
	UUID() bluetooth.UUID
	EnableNotifications(callback func(buf []byte)) error
	Write(p []byte) (int, error)
	Read(data []byte) (int, error)
}

// service is the seam of DeviceService methods this package uses.
type service interface {
	UUID() bluetooth.UUID
	DiscoverCharacteristics(uuids []bluetooth.UUID) ([]characteristic, error)
}

// device is the seam of Device methods this package uses.
type device interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]service, error)
	Disconnect() error
}

// scanCandidate is the subset of a discovered advertisement the scan/match/
// connect algorithm in session.go needs, decoupled from bluetooth.ScanResult
// so a fake bleAdapter can drive it in tests without constructing a live
// AdvertisementPayload.
type scanCandidate struct {
	Address        bluetooth.Address
	LocalName      string
	HasServiceUUID func(bluetooth.UUID) bool
}

// bleAdapter is the seam of Adapter methods this package uses.
type bleAdapter interface {
	Scan(callback func(candidate scanCandidate)) error
	StopScan() error
	Connect(address bluetooth.Address) (device, error)
}

// realAdapter wraps a live tinygo.org/x/bluetooth.Adapter (normally
// bluetooth.DefaultAdapter), translating between this package's seam and
// the library's concrete types (grounded on `other_examples`
// tim-oster-walkingpad/internal/walkingpads/kingsmith.go's direct use of
// Adapter.Connect/Device.DiscoverServices/DeviceService.DiscoverCharacteristics).
type realAdapter struct {
	adapter *bluetooth.Adapter
}

// WrapAdapter adapts a live *bluetooth.Adapter (after Enable has been
// called) to the bleAdapter seam.
func WrapAdapter(a *bluetooth.Adapter) bleAdapter {
	return realAdapter{adapter: a}
}

func (a realAdapter) Scan(callback func(candidate scanCandidate)) error {
	return a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		callback(scanCandidate{
			Address:        result.Address,
			LocalName:      result.LocalName(),
			HasServiceUUID: result.HasServiceUUID,
		})
	})
}

func (a realAdapter) StopScan() error {
	return a.adapter.StopScan()
}

func (a realAdapter) Connect(address bluetooth.Address) (device, error) {
	dev, err := a.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return realDevice{dev}, nil
}

type realDevice struct {
	dev bluetooth.Device
}

func (d realDevice) DiscoverServices(uuids []bluetooth.UUID) ([]service, error) {
	services, err := d.dev.DiscoverServices(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]service, len(services))
	for i, s := range services {
		out[i] = realService{s}
	}
	return out, nil
}

func (d realDevice) Disconnect() error {
	return d.dev.Disconnect()
}

type realService struct {
	svc bluetooth.DeviceService
}

func (s realService) UUID() bluetooth.UUID { return s.svc.UUID() }

func (s realService) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]characteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]characteristic, len(chars))
	for i, c := range chars {
		out[i] = c
	}
	return out, nil
}
