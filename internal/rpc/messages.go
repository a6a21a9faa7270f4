package rpc

import (
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/google/uuid"
)

type RegisterUserRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type RegisterUserResponse struct {
	UserID string `json:"userId"`
}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username          string `json:"username"`
	VerifierCandidate []byte `json:"verifierCandidate"`
}

// TokenResponse answers Login and RefreshToken. ExpiresAt is unix ms.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// SyncItem is one encrypted item as the server sees it. Cipher is nil only
// for tombstones the server generates itself.
type SyncItem struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	DateModified int64             `json:"dateModified"`
	Deleted      bool              `json:"deleted,omitempty"`
	Cipher       *cryptox.Envelope `json:"cipher,omitempty"`
}

type PushRequest struct {
	DeviceID string      `json:"deviceId"`
	Items    []*SyncItem `json:"items"`
}

type PushResponse struct {
	Accepted   int   `json:"accepted"`
	LastSynced int64 `json:"lastSynced"`
}

type PullRequest struct {
	Since    int64  `json:"since"`
	DeviceID string `json:"deviceId"`
	Limit    int    `json:"limit,omitempty"`
}

// PullResponse carries one page. LastSynced is the server timestamp of the
// last item in the page, or the request's Since when the page is empty.
// Total counts every item newer than Since, this page included.
type PullResponse struct {
	Items      []*SyncItem `json:"items"`
	LastSynced int64       `json:"lastSynced"`
	HasMore    bool        `json:"hasMore"`
	Total      int         `json:"total"`
}

type SubscribeRequest struct {
	DeviceID string `json:"deviceId"`
}

// SyncNotification tells a device that another device changed the data.
type SyncNotification struct {
	Full     bool   `json:"full"`
	Force    bool   `json:"force"`
	DeviceID string `json:"deviceId"`
}

// Monograph is a published note. Exactly one of Content and Encrypted is set.
type Monograph struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Content       string            `json:"content,omitempty"`
	Encrypted     *cryptox.Envelope `json:"encrypted,omitempty"`
	SelfDestruct  bool              `json:"selfDestruct,omitempty"`
	DatePublished int64             `json:"datePublished"`
}

type PublishMonographRequest struct {
	DeviceID  string     `json:"deviceId"`
	Monograph *Monograph `json:"monograph"`
}

type PublishMonographResponse struct {
	ID            string `json:"id"`
	DatePublished int64  `json:"datePublished"`
}

type UnpublishMonographRequest struct {
	ID string `json:"id"`
}

type UnpublishMonographResponse struct{}

type ViewMonographRequest struct {
	ID string `json:"id"`
}

type ViewMonographResponse struct {
	Monograph *Monograph `json:"monograph"`
}

// ServerDeviceID marks items the server wrote itself. Devices may not use it.
const ServerDeviceID = "server"

// MonographItemID is the id under which the monograph of a note travels in
// the item stream. The public record itself is addressed by the note id.
func MonographItemID(noteID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("monograph:"+noteID)).String()
}
