// Package projection keeps the patient service's local copies of records
// owned by the clinic service. Records change only by applying events.
package projection

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVisit       Kind = "visit"
	KindAllergy     Kind = "allergy"
	KindVaccination Kind = "vaccination"
	KindNote        Kind = "note"
	KindAppointment Kind = "appointment"
)

var collections = map[string]Kind{
	"visits":       KindVisit,
	"allergies":    KindAllergy,
	"vaccinations": KindVaccination,
	"notes":        KindNote,
	"appointments": KindAppointment,
}

// KindForCollection maps a plural URL segment to its kind.
func KindForCollection(name string) (Kind, bool) {
	k, ok := collections[name]
	return k, ok
}

// ParseKind accepts a singular kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range collections {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Record is one projected document.
type Record struct {
	Kind          Kind            `json:"kind"`
	ID            string          `json:"id"`
	PatientID     string          `json:"patientId"`
	Version       int64           `json:"version"`
	Document      json.RawMessage `json:"document"`
	SourceEventID uuid.UUID       `json:"sourceEventId"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Outcome reports what Apply did with an event.
type Outcome int

const (
	Applied Outcome = iota
	// Duplicate means the event id was already processed.
	Duplicate
	// Stale means a newer or equal version is already stored.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	}
	return "unknown"
}
