// Package domain contains entities without logic, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConnID string

// Member describes a single transport connection.
// No transport or lifecycle logic here.
type Member struct {
	ID          ConnID
	ClientToken string
	RemoteAddr  string
	ConnectedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(clientToken, remoteAddr string) *Member {
	return &Member{
		ID:          ConnID(uuid.NewString()),
		ClientToken: clientToken,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
}
