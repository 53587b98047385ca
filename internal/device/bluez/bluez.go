// Package bluez implements device.Adapter on top of the BlueZ D-Bus API and kernel RFCOMM sockets.
package bluez

import (
	"sort"
	"strings"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/srg/btclassic/internal/device"
)

const (
	bluezService    = "org.bluez"
	deviceIface     = "org.bluez.Device1"
	adapterIface    = "org.bluez.Adapter1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"
)

// Options tunes RFCOMM dialing.
type Options struct {
	Channel         int           // fixed RFCOMM channel; 0 probes 1..MaxProbeChannel
	MaxProbeChannel int           // highest channel tried when probing
	ConnectRetries  int           // extra attempts after the first failed round
	RetryInterval   time.Duration // initial backoff between rounds
}

// DefaultOptions returns the dialing defaults.
func DefaultOptions() Options {
	return Options{
		MaxProbeChannel: 5,
		ConnectRetries:  2,
		RetryInterval:   250 * time.Millisecond,
	}
}

// channels returns the RFCOMM channels to try, in order.
func (o Options) channels() []uint8 {
	if o.Channel > 0 && o.Channel <= 30 {
		return []uint8{uint8(o.Channel)}
	}
	max := o.MaxProbeChannel
	if max <= 0 || max > 30 {
		max = 5
	}
	out := make([]uint8, 0, max)
	for ch := 1; ch <= max; ch++ {
		out = append(out, uint8(ch))
	}
	return out
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// firstAdapter picks the lowest-sorted adapter path (hci0 before hci1).
func firstAdapter(objs managedObjects) (dbus.ObjectPath, map[string]dbus.Variant, bool) {
	var paths []string
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			paths = append(paths, string(path))
		}
	}
	if len(paths) == 0 {
		return "", nil, false
	}
	sort.Strings(paths)
	p := dbus.ObjectPath(paths[0])
	return p, objs[p][adapterIface], true
}

func adapterStateFromProps(props map[string]dbus.Variant) device.AdapterState {
	st := device.AdapterState{Present: true}
	st.Powered, _ = variantBool(props, "Powered")
	st.Discovering, _ = variantBool(props, "Discovering")
	st.Address, _ = variantString(props, "Address")
	if alias, ok := variantString(props, "Alias"); ok && alias != "" {
		st.Name = alias
	} else {
		st.Name, _ = variantString(props, "Name")
	}
	return st
}

// deviceFromIfaces extracts a device.Info from a Device1 object.
func deviceFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (device.Info, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return device.Info{}, false
	}
	return deviceFromProps(path, props), true
}

func deviceFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) device.Info {
	info := device.Info{Type: device.TypeClassic}

	addr, _ := variantString(props, "Address")
	if addr == "" {
		addr = macFromPath(path)
	}
	info.Address = strings.ToUpper(addr)

	if name, ok := variantString(props, "Name"); ok && name != "" {
		info.Name = name
	} else {
		info.Name, _ = variantString(props, "Alias")
	}
	info.Paired, _ = variantBool(props, "Paired")
	info.IsConnected, _ = variantBool(props, "Connected")
	if v, ok := props["UUIDs"]; ok {
		info.UUIDs, _ = v.Value().([]string)
	}
	return info
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

func variantString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func variantBool(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func sortByAddress(devs []device.Info) {
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
}
