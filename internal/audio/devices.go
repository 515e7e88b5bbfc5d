// internal/audio/devices.go
package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one playback or capture endpoint
type DeviceInfo struct {
	Index     int
	Name      string
	Kind      string
	IsDefault bool
}

// ListDevices enumerates playback and capture devices on the default backend.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	var out []DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Playback, malgo.Capture} {
		infos, err := ctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("enumerate devices: %w", err)
		}
		out = append(out, describe(kind, infos)...)
	}
	return out, nil
}

func describe(kind malgo.DeviceType, infos []malgo.DeviceInfo) []DeviceInfo {
	name := "capture"
	if kind == malgo.Playback {
		name = "playback"
	}
	out := make([]DeviceInfo, len(infos))
	for i, d := range infos {
		out[i] = DeviceInfo{Index: i, Name: d.Name(), Kind: name, IsDefault: d.IsDefault != 0}
	}
	return out
}

func deviceID(ctx *malgo.AllocatedContext, kind malgo.DeviceType, index int) (malgo.DeviceID, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("enumerate devices: %w", err)
	}
	if index >= len(infos) {
		return malgo.DeviceID{}, fmt.Errorf("%w: %d (have %d devices)", ErrDeviceIndex, index, len(infos))
	}
	return infos[index].ID, nil
}
