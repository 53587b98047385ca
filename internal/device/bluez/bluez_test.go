package bluez

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/srg/btclassic/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacFromPath(t *testing.T) {
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", macFromPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"))
	assert.Equal(t, "", macFromPath("/org/bluez/hci0"))
}

func TestDeviceFromIfaces(t *testing.T) {
	path := dbus.ObjectPath("/org/bluez/hci0/dev_00_11_22_33_44_55")

	t.Run("full properties", func(t *testing.T) {
		ifaces := map[string]map[string]dbus.Variant{
			deviceIface: {
				"Address":   dbus.MakeVariant("00:11:22:33:44:55"),
				"Name":      dbus.MakeVariant("HC-05"),
				"Alias":     dbus.MakeVariant("my module"),
				"Paired":    dbus.MakeVariant(true),
				"Connected": dbus.MakeVariant(false),
				"UUIDs":     dbus.MakeVariant([]string{device.SerialPortUUID}),
			},
		}

		info, ok := deviceFromIfaces(path, ifaces)
		require.True(t, ok)
		assert.Equal(t, device.Info{
			Name:        "HC-05",
			Address:     "00:11:22:33:44:55",
			Type:        device.TypeClassic,
			IsConnected: false,
			Paired:      true,
			UUIDs:       []string{device.SerialPortUUID},
		}, info)
	})

	t.Run("address from path and alias fallback", func(t *testing.T) {
		ifaces := map[string]map[string]dbus.Variant{
			deviceIface: {
				"Alias":     dbus.MakeVariant("printer"),
				"Connected": dbus.MakeVariant(true),
			},
		}

		info, ok := deviceFromIfaces(path, ifaces)
		require.True(t, ok)
		assert.Equal(t, "00:11:22:33:44:55", info.Address)
		assert.Equal(t, "printer", info.Name)
		assert.True(t, info.IsConnected)
		assert.False(t, info.Paired)
	})

	t.Run("non device object", func(t *testing.T) {
		_, ok := deviceFromIfaces("/org/bluez/hci0", map[string]map[string]dbus.Variant{adapterIface: {}})
		assert.False(t, ok)
	})
}

func TestFirstAdapter(t *testing.T) {
	objs := managedObjects{
		"/org/bluez/hci1": {adapterIface: {"Powered": dbus.MakeVariant(false)}},
		"/org/bluez/hci0": {adapterIface: {
			"Powered":     dbus.MakeVariant(true),
			"Discovering": dbus.MakeVariant(true),
			"Address":     dbus.MakeVariant("01:02:03:04:05:06"),
			"Alias":       dbus.MakeVariant("workstation"),
			"Name":        dbus.MakeVariant("BlueZ 5.72"),
		}},
		"/org/bluez/hci0/dev_00_11_22_33_44_55": {deviceIface: {}},
	}

	path, props, ok := firstAdapter(objs)
	require.True(t, ok)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), path)

	st := adapterStateFromProps(props)
	assert.Equal(t, device.AdapterState{
		Present:     true,
		Powered:     true,
		Discovering: true,
		Name:        "workstation",
		Address:     "01:02:03:04:05:06",
	}, st)

	_, _, ok = firstAdapter(managedObjects{})
	assert.False(t, ok)
}

func TestOptions_Channels(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []uint8
	}{
		{name: "fixed channel", opts: Options{Channel: 3}, want: []uint8{3}},
		{name: "probe defaults", opts: DefaultOptions(), want: []uint8{1, 2, 3, 4, 5}},
		{name: "probe custom", opts: Options{MaxProbeChannel: 2}, want: []uint8{1, 2}},
		{name: "out of range channel probes", opts: Options{Channel: 31, MaxProbeChannel: 1}, want: []uint8{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.channels())
		})
	}
}
