package ftms

import (
	"encoding/binary"
	"time"

	"tinygo.org/x/bluetooth"
)

// DialMock builds a Driver wired to an in-process loopback peripheral
// instead of scanning for real BLE hardware. It satisfies the spec's
// permitted "no-op stub" non-goal for trainer I/O and is what the
// `--mock-trainer` flag selects, making the rest of the stack (engine,
// router, transport) exercisable without hardware.
func DialMock() (*Driver, error) {
	dev := &mockDevice{}
	svc := &mockService{}

	feature := make([]byte, 8)
	binary.LittleEndian.PutUint32(feature[0:4], 0)
	binary.LittleEndian.PutUint32(feature[4:8], 0)

	resistance := make([]byte, 6)
	binary.LittleEndian.PutUint16(resistance[0:2], 0)
	binary.LittleEndian.PutUint16(resistance[2:4], 100)
	binary.LittleEndian.PutUint16(resistance[4:6], 1)

	power := make([]byte, 6)
	binary.LittleEndian.PutUint16(power[0:2], uint16(int16(-50)))
	binary.LittleEndian.PutUint16(power[2:4], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(power[4:6], 1)

	svc.chars = map[bluetooth.UUID]*mockCharacteristic{
		CharFeature:             {uuid: CharFeature, readBuf: feature},
		CharSupportedResistance: {uuid: CharSupportedResistance, readBuf: resistance},
		CharSupportedPowerRange: {uuid: CharSupportedPowerRange, readBuf: power},
		CharIndoorBikeData:      {uuid: CharIndoorBikeData},
		CharTrainingStatus:      {uuid: CharTrainingStatus},
		CharMachineStatus:       {uuid: CharMachineStatus},
		CharControlPoint:        {uuid: CharControlPoint, autoReply: true},
	}
	dev.svc = svc

	return newDriver(dev, svc)
}

type mockDevice struct {
	svc *mockService
}

func (d *mockDevice) DiscoverServices(uuids []bluetooth.UUID) ([]service, error) {
	return []service{d.svc}, nil
}

func (d *mockDevice) Disconnect() error { return nil }

type mockService struct {
	chars map[bluetooth.UUID]*mockCharacteristic
}

func (s *mockService) UUID() bluetooth.UUID { return ServiceUUID }

func (s *mockService) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]characteristic, error) {
	out := make([]characteristic, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, c)
	}
	return out, nil
}

// mockCharacteristic is an in-memory stand-in for a
// bluetooth.DeviceCharacteristic: Read returns a fixed buffer, Write
// optionally triggers an auto-reply indication (used for the control
// point, which otherwise has no real peripheral to answer it), and
// EnableNotifications just records the callback for a test/mock driver
// loop to invoke directly.
type mockCharacteristic struct {
	uuid      bluetooth.UUID
	readBuf   []byte
	autoReply bool
	notifyFn  func([]byte)
}

func (c *mockCharacteristic) UUID() bluetooth.UUID { return c.uuid }

func (c *mockCharacteristic) EnableNotifications(callback func(buf []byte)) error {
	c.notifyFn = callback
	return nil
}

func (c *mockCharacteristic) Read(data []byte) (int, error) {
	n := copy(data, c.readBuf)
	return n, nil
}

func (c *mockCharacteristic) Write(p []byte) (int, error) {
	if c.autoReply && c.notifyFn != nil && len(p) > 0 {
		opcode := p[0]
		go func() {
			// Emulate peripheral processing latency so the round-trip
			// exercises the same suspension points production code does.
			time.Sleep(5 * time.Millisecond)
			c.notifyFn([]byte{ResponseOpcode, opcode, StatusSuccess})
		}()
	}
	return len(p), nil
}

// MockBikeDataLoop periodically synthesizes an Indoor Bike Data
// notification on d's loopback peripheral, so a `--mock-trainer` run
// exercises the bike-data broadcast end to end. It blocks until stop is
// closed.
func MockBikeDataLoop(d *Driver, watts func() int16, stop <-chan struct{}) {
	ch, ok := d.characteristics[CharIndoorBikeData].(*mockCharacteristic)
	if !ok || ch.notifyFn == nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			buf := make([]byte, 6)
			binary.LittleEndian.PutUint16(buf[0:2], 0x0040) // bit 6: inst_power present, bit 0 clear
			binary.LittleEndian.PutUint16(buf[2:4], 0)       // inst_speed (unused by mock)
			binary.LittleEndian.PutUint16(buf[4:6], uint16(watts()))
			ch.notifyFn(buf)
		}
	}
}
