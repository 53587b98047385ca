// Package device defines the native Bluetooth Classic boundary used by the rest of btclassic.
//
// It holds:
//   - The Adapter interface implemented by OS backends (BlueZ on Linux)
//   - The Socket abstraction for an open RFCOMM stream
//   - Device address parsing and normalization
//   - Structured connection and lookup errors shared by all layers
package device
