package domain

import (
	"strings"
	"time"
)

// EventKind classifies an inbound chat update.
type EventKind int

const (
	EventOther EventKind = iota
	EventText
	EventPhoto
)

func (k EventKind) String() string {
	switch k {
	case EventPhoto:
		return "photo"
	case EventText:
		return "text"
	default:
		return "other"
	}
}

// Sender identifies the author of an inbound message.
type Sender struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}

// DisplayName joins first and last name, falling back to the handle.
func (s Sender) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
	if name != "" {
		return name
	}
	if s.Username != "" {
		return "@" + s.Username
	}
	return "unknown"
}

// PhotoSize is one resolution variant of a received image.
type PhotoSize struct {
	FileID       string `json:"fileId"`
	FileUniqueID string `json:"fileUniqueId"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int    `json:"fileSize"`
}

// InboundEvent is a transport-neutral view of one chat update.
type InboundEvent struct {
	Kind      EventKind   `json:"kind"`
	ChatID    int64       `json:"chatId"`
	MessageID int         `json:"messageId"`
	Sender    Sender      `json:"sender"`
	Text      string      `json:"text,omitempty"`
	Photos    []PhotoSize `json:"photos,omitempty"`
}

// LargestPhoto returns the highest-resolution variant.
// Ties keep the later entry, matching the transport's ascending order.
func (e InboundEvent) LargestPhoto() (PhotoSize, bool) {
	if len(e.Photos) == 0 {
		return PhotoSize{}, false
	}
	best := e.Photos[0]
	for _, p := range e.Photos[1:] {
		if p.Width*p.Height >= best.Width*best.Height {
			best = p
		}
	}
	return best, true
}

// User is a ledger row for a chat participant.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserFromSender copies the identity fields of a sender.
func UserFromSender(s Sender) User {
	return User{ID: s.ID, FirstName: s.FirstName, LastName: s.LastName, Username: s.Username}
}

// Upload records one received image.
type Upload struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	FileID       string    `json:"fileId"`
	FileUniqueID string    `json:"fileUniqueId"`
	StorageKey   string    `json:"storageKey,omitempty"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ReadingOutcome is the kind of result a reading was resolved from.
type ReadingOutcome string

const (
	OutcomeText    ReadingOutcome = "text"
	OutcomeRefused ReadingOutcome = "refused"
	OutcomeEmpty   ReadingOutcome = "empty"
)

// Reading records one completed generation cycle.
type Reading struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"userId"`
	UploadID      int64             `json:"uploadId"`
	Prompt        string            `json:"prompt"`
	Response      string            `json:"response"`
	Outcome       ReadingOutcome    `json:"outcome"`
	RefusalReason string            `json:"refusalReason,omitempty"`
	Generation    map[string]string `json:"generation,omitempty"`
	FirstName     string            `json:"firstName"`
	LastName      string            `json:"lastName"`
	Username      string            `json:"username"`
	CreatedAt     time.Time         `json:"createdAt"`
}
