// Package common contains shared constants and sentinel errors used across
// GophNotes components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DeviceIDHeaderName carries the id of the device issuing a request so the
// server can skip echoing a device's own writes back to it.
const DeviceIDHeaderName = "device_id"
