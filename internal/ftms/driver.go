package ftms

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"tinygo.org/x/bluetooth"

	"github.com/szymek156/velomania-go/internal/pubsub"
	"github.com/szymek156/velomania-go/internal/telemetry"
)

// mandatoryCharacteristics is the set of characteristic UUIDs the target
// service must expose; construction fails if any is missing (spec §4.6:
// "Construction fails if any mandatory characteristic is absent").
var mandatoryCharacteristics = []bluetooth.UUID{
	CharFeature,
	CharIndoorBikeData,
	CharTrainingStatus,
	CharSupportedResistance,
	CharSupportedPowerRange,
	CharControlPoint,
	CharMachineStatus,
}

// Driver implements the Fitness Machine driver (spec §4.6): construction
// sequence, notification dispatch, and control-point request/response.
// The driver exclusively owns its characteristic handles; it shares the
// device handle read-only with nothing else, since EnableNotifications'
// callback-based delivery (rather than a hand-rolled pump goroutine)
// means the underlying library already owns the single notification
// stream (spec §4.6: "Notification pump ... Owns the peripheral's single
// notification stream").
type Driver struct {
	dev             device
	characteristics map[bluetooth.UUID]characteristic

	ResistanceRange ResistanceRange
	PowerRange      PowerRange
	Feature         Feature

	bikeData       *pubsub.Broadcaster[BikeData]
	trainingStatus *pubsub.Broadcaster[[]byte]
	machineStatus  *pubsub.Broadcaster[string]
	controlPoint   *pubsub.Broadcaster[ControlPointResponse]

	logger *log.Logger
}

func newDriver(dev device, svc service) (*Driver, error) {
	chars, err := svc.DiscoverCharacteristics(mandatoryCharacteristics)
	if err != nil {
		return nil, fmt.Errorf("discover ftms characteristics: %w", err)
	}

	table := make(map[bluetooth.UUID]characteristic, len(chars))
	for _, c := range chars {
		table[c.UUID()] = c
	}
	for _, want := range mandatoryCharacteristics {
		if _, ok := table[want]; !ok {
			return nil, fmt.Errorf("ftms: missing mandatory characteristic %s", want.String())
		}
	}

	d := &Driver{
		dev:             dev,
		characteristics: table,
		bikeData:        pubsub.New[BikeData](16),
		trainingStatus:  pubsub.New[[]byte](16),
		machineStatus:   pubsub.New[string](16),
		controlPoint:    pubsub.New[ControlPointResponse](16),
		logger:          log.Default().With("component", "ftms"),
	}

	if err := table[CharIndoorBikeData].EnableNotifications(d.onIndoorBikeData); err != nil {
		return nil, fmt.Errorf("subscribe indoor bike data: %w", err)
	}
	if err := table[CharTrainingStatus].EnableNotifications(d.onTrainingStatus); err != nil {
		return nil, fmt.Errorf("subscribe training status: %w", err)
	}
	if err := table[CharMachineStatus].EnableNotifications(d.onMachineStatus); err != nil {
		return nil, fmt.Errorf("subscribe machine status: %w", err)
	}
	if err := table[CharControlPoint].EnableNotifications(d.onControlPointIndication); err != nil {
		return nil, fmt.Errorf("subscribe control point: %w", err)
	}

	if err := d.readRanges(); err != nil {
		return nil, err
	}

	if _, err := d.controlPointRoundTrip(context.Background(), encodeRequestControl()); err != nil {
		return nil, fmt.Errorf("request control: %w", err)
	}

	return d, nil
}

func (d *Driver) readRanges() error {
	buf := make([]byte, 8)

	n, err := d.characteristics[CharFeature].Read(buf)
	if err != nil {
		return fmt.Errorf("read feature: %w", err)
	}
	feature, err := DecodeFeature(buf[:n])
	if err != nil {
		return fmt.Errorf("decode feature: %w", err)
	}
	d.Feature = feature

	n, err = d.characteristics[CharSupportedResistance].Read(buf)
	if err != nil {
		return fmt.Errorf("read resistance range: %w", err)
	}
	resistance, err := DecodeResistanceRange(buf[:n])
	if err != nil {
		return fmt.Errorf("decode resistance range: %w", err)
	}
	d.ResistanceRange = resistance

	n, err = d.characteristics[CharSupportedPowerRange].Read(buf)
	if err != nil {
		return fmt.Errorf("read power range: %w", err)
	}
	power, err := DecodePowerRange(buf[:n])
	if err != nil {
		return fmt.Errorf("decode power range: %w", err)
	}
	d.PowerRange = power

	return nil
}

// controlPointRoundTrip writes frame to the control point and awaits the
// matching indication, subscribing before writing so the response cannot
// arrive and be missed between the two steps (spec §8 invariant 6: "a
// control-point write is always followed by exactly one indication
// decoded by the driver before the next write is issued").
func (d *Driver) controlPointRoundTrip(ctx context.Context, frame []byte) (ControlPointResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ftms.controlPointRoundTrip")
	defer span.End()
	if len(frame) > 0 {
		span.SetAttributes(attribute.Int("ftms.opcode", int(frame[0])))
	}

	sub := d.controlPoint.Subscribe()
	defer d.controlPoint.Unsubscribe(sub)

	if _, err := d.characteristics[CharControlPoint].Write(frame); err != nil {
		span.RecordError(err)
		return ControlPointResponse{}, fmt.Errorf("write control point: %w", err)
	}

	select {
	case resp, ok := <-sub:
		if !ok {
			err := fmt.Errorf("control point subscription closed")
			span.RecordError(err)
			return ControlPointResponse{}, err
		}
		span.SetAttributes(attribute.Int("ftms.status", int(resp.Status)))
		return resp, nil
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return ControlPointResponse{}, ctx.Err()
	}
}

// SetTargetPower validates watts against the device-reported power range
// and, if valid, issues the control-point write and awaits the
// indication. Out-of-range requests are rejected locally and never
// written (spec §4.6, §7 error class 4).
func (d *Driver) SetTargetPower(ctx context.Context, watts int16) (ControlPointResponse, error) {
	if !d.PowerRange.Contains(watts) {
		return ControlPointResponse{}, fmt.Errorf("target power %dW outside supported range [%d,%d]", watts, d.PowerRange.Minimum, d.PowerRange.Maximum)
	}
	return d.controlPointRoundTrip(ctx, encodeSetTargetPower(watts))
}

// SetTargetResistance issues SetTargetResistance and awaits the
// indication.
func (d *Driver) SetTargetResistance(ctx context.Context, level uint8) (ControlPointResponse, error) {
	return d.controlPointRoundTrip(ctx, encodeSetTargetResistance(level))
}

// Start issues the Start opcode and awaits the indication.
func (d *Driver) Start(ctx context.Context) (ControlPointResponse, error) {
	return d.controlPointRoundTrip(ctx, encodeStart())
}

// Stop issues the Stop opcode and awaits the indication.
func (d *Driver) Stop(ctx context.Context) (ControlPointResponse, error) {
	return d.controlPointRoundTrip(ctx, encodeStop())
}

// Reset issues the Reset opcode and awaits the indication.
func (d *Driver) Reset(ctx context.Context) (ControlPointResponse, error) {
	return d.controlPointRoundTrip(ctx, encodeReset())
}

// Close disconnects the underlying peripheral. The driver's broadcasters
// are left open; the caller (router) is responsible for closing the ones
// it owns (spec §4.8).
func (d *Driver) Close() error {
	return d.dev.Disconnect()
}

// SubscribeBikeData returns a fresh receive endpoint for decoded Indoor
// Bike Data notifications (spec §4.6 subscriptions).
func (d *Driver) SubscribeBikeData() <-chan BikeData { return d.bikeData.Subscribe() }

// SubscribeTrainingStatus returns a fresh receive endpoint for raw
// Training Status notifications (spec §4.6: "publish raw").
func (d *Driver) SubscribeTrainingStatus() <-chan []byte { return d.trainingStatus.Subscribe() }

// SubscribeMachineStatus returns a fresh receive endpoint for Machine
// Status notifications rendered to their string form.
func (d *Driver) SubscribeMachineStatus() <-chan string { return d.machineStatus.Subscribe() }

// SubscribeControlPoint returns a fresh receive endpoint for decoded
// control-point indications, in addition to the one-shot subscriptions
// controlPointRoundTrip makes internally for each request.
func (d *Driver) SubscribeControlPoint() <-chan ControlPointResponse { return d.controlPoint.Subscribe() }

func (d *Driver) onIndoorBikeData(buf []byte) {
	data, err := DecodeBikeData(buf)
	if err != nil {
		d.logger.Warn("dropping malformed indoor bike data notification", "err", err)
		return
	}
	d.bikeData.Send(data)
}

func (d *Driver) onTrainingStatus(buf []byte) {
	d.trainingStatus.Send(append([]byte(nil), buf...))
}

func (d *Driver) onMachineStatus(buf []byte) {
	d.machineStatus.Send(machineStatusString(buf))
}

func (d *Driver) onControlPointIndication(buf []byte) {
	resp, err := DecodeControlPointResponse(buf)
	if err != nil {
		d.logger.Warn("dropping malformed control point indication", "err", err)
		return
	}
	d.controlPoint.Send(resp)
}

// machineStatusOpcodes names the common Fitness Machine Status opcodes
// from the Bluetooth SIG FTMS specification, for display purposes.
var machineStatusOpcodes = map[byte]string{
	0x01: "Reset",
	0x02: "StoppedOrPausedByUser",
	0x03: "StoppedBySafetyKey",
	0x04: "StartedOrResumedByUser",
	0x05: "TargetSpeedChanged",
	0x06: "TargetIncineChanged",
	0x07: "TargetResistanceLevelChanged",
	0x08: "TargetPowerChanged",
	0x0C: "TargetTargetTimeChanged",
	0x13: "ControlPermissionLost",
}

func machineStatusString(buf []byte) string {
	if len(buf) == 0 {
		return "MachineStatus(empty)"
	}
	if name, ok := machineStatusOpcodes[buf[0]]; ok {
		return name
	}
	return fmt.Sprintf("MachineStatus(op=0x%02x)", buf[0])
}
