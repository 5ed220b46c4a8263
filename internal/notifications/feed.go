package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type ChangeKind string

const (
	Inserted ChangeKind = "inserted"
	Updated  ChangeKind = "updated"
	Deleted  ChangeKind = "deleted"
)

// ChangeEvent is one row change on the notifications table. ID is always
// set; Record is empty for deletes.
type ChangeEvent struct {
	Kind   ChangeKind
	ID     string
	Record models.Notification
}

// Subscription is a live handle on the change feed. Events is closed when
// the feed ends; Err then reports why. Close releases the handle.
type Subscription interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// wireRecord lets a missing is_active mean active. Only an explicit false
// deactivates.
type wireRecord struct {
	models.Notification
	IsActive *bool `json:"is_active"`
}

func (w *wireRecord) record() models.Notification {
	n := w.Notification
	n.IsActive = w.IsActive == nil || *w.IsActive
	return n
}

// wireEvent is the JSON envelope published on the change topic.
type wireEvent struct {
	EventType string      `json:"eventType"`
	New       *wireRecord `json:"new,omitempty"`
	Old       *struct {
		ID string `json:"id"`
	} `json:"old,omitempty"`
}

func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to decode change event: %w", err)
	}

	switch strings.ToUpper(w.EventType) {
	case "INSERT", "UPDATE":
		if w.New == nil || w.New.ID == "" {
			return ChangeEvent{}, fmt.Errorf("%s event without record id", w.EventType)
		}
		kind := Inserted
		if strings.EqualFold(w.EventType, "UPDATE") {
			kind = Updated
		}
		return ChangeEvent{Kind: kind, ID: w.New.ID, Record: w.New.record()}, nil
	case "DELETE":
		id := ""
		if w.Old != nil {
			id = w.Old.ID
		}
		if id == "" && w.New != nil {
			id = w.New.ID
		}
		if id == "" {
			return ChangeEvent{}, fmt.Errorf("DELETE event without id")
		}
		return ChangeEvent{Kind: Deleted, ID: id}, nil
	default:
		return ChangeEvent{}, fmt.Errorf("unknown change event type %q", w.EventType)
	}
}
