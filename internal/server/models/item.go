package models

// Item is one encrypted record of a user as the relay keeps it. Cipher is
// the serialized envelope and stays opaque to the server; it is nil for
// tombstones the server writes itself.
type Item struct {
	UserID       string
	ID           string
	Type         string
	DateModified int64
	Deleted      bool
	Cipher       []byte
	// Stamp is the server timestamp of the last accepted write.
	Stamp int64
	// DeviceID is the device that made the last accepted write.
	DeviceID string
}

// Monograph is the owner record of a published note. The public body lives
// in the object store under the same id.
type Monograph struct {
	ID            string
	UserID        string
	SelfDestruct  bool
	DatePublished int64
}
