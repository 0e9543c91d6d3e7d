package appointment

import (
	"bytes"
	"context"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Triage picks the doctor who takes an emergency request.
type Triage interface {
	Assign(ctx context.Context, req EmergencyRequest) (uuid.UUID, error)
}

// RosterTriage assigns from a specialization -> on-call roster. Requests
// without a matching specialization are spread over every rostered doctor
// by a hash of the patient id so the same patient lands on the same doctor.
type RosterTriage struct {
	roster   map[string][]uuid.UUID
	all      []uuid.UUID
	fallback uuid.UUID
}

func NewRosterTriage(roster map[string][]uuid.UUID, fallback uuid.UUID) *RosterTriage {
	t := &RosterTriage{roster: make(map[string][]uuid.UUID, len(roster)), fallback: fallback}
	seen := make(map[uuid.UUID]bool)
	for specialty, ids := range roster {
		t.roster[strings.ToLower(specialty)] = ids
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				t.all = append(t.all, id)
			}
		}
	}
	// map iteration order is random; keep the spread deterministic
	slices.SortFunc(t.all, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return t
}

func (t *RosterTriage) Assign(_ context.Context, req EmergencyRequest) (uuid.UUID, error) {
	if ids := t.roster[strings.ToLower(req.PreferredSpecialization)]; len(ids) > 0 {
		return pick(ids, req.PatientID), nil
	}
	if len(t.all) > 0 {
		return pick(t.all, req.PatientID), nil
	}
	if t.fallback != uuid.Nil {
		return t.fallback, nil
	}
	return uuid.Nil, ErrNoDoctorAvailable
}

func pick(ids []uuid.UUID, patientID uuid.UUID) uuid.UUID {
	h := fnv.New32a()
	_, _ = h.Write(patientID[:])
	return ids[int(h.Sum32()%uint32(len(ids)))]
}
