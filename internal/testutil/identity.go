package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/profile"
)

// FakeIdentity is an httptest-backed identity service serving the
// profile endpoints the profile client calls.
type FakeIdentity struct {
	Server *httptest.Server

	mu       sync.RWMutex
	doctors  map[uuid.UUID]profile.Doctor
	patients map[uuid.UUID]profile.Patient
	healthy  atomic.Bool

	ProbeCalls   atomic.Int32
	ProfileCalls atomic.Int32
}

func NewFakeIdentity(t *testing.T) *FakeIdentity {
	t.Helper()

	f := &FakeIdentity{
		doctors:  make(map[uuid.UUID]profile.Doctor),
		patients: make(map[uuid.UUID]profile.Patient),
	}
	f.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		f.ProbeCalls.Add(1)
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/internal/doctors/", func(w http.ResponseWriter, r *http.Request) {
		f.ProfileCalls.Add(1)
		id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/internal/doctors/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.RLock()
		d, ok := f.doctors[id]
		f.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(d)
	})
	mux.HandleFunc("/api/v1/internal/patients/", func(w http.ResponseWriter, r *http.Request) {
		f.ProfileCalls.Add(1)
		id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/internal/patients/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.RLock()
		p, ok := f.patients[id]
		f.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeIdentity) URL() string { return f.Server.URL }

func (f *FakeIdentity) SetHealthy(ok bool) { f.healthy.Store(ok) }

func (f *FakeIdentity) AddDoctor(d profile.Doctor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doctors[d.ID] = d
}

func (f *FakeIdentity) AddPatient(p profile.Patient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patients[p.ID] = p
}

// StaticProfiles is an in-memory profile.Lookup for service tests.
type StaticProfiles struct {
	mu       sync.RWMutex
	Doctors  map[uuid.UUID]profile.Doctor
	Patients map[uuid.UUID]profile.Patient
	Err      error
}

func NewStaticProfiles() *StaticProfiles {
	return &StaticProfiles{
		Doctors:  make(map[uuid.UUID]profile.Doctor),
		Patients: make(map[uuid.UUID]profile.Patient),
	}
}

func (s *StaticProfiles) AddDoctor(id uuid.UUID, first, last string) profile.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := profile.Doctor{ID: id, FirstName: first, LastName: last, Email: strings.ToLower(first) + "@clinic.test", Specialization: "general"}
	s.Doctors[id] = d
	return d
}

func (s *StaticProfiles) AddPatient(id uuid.UUID, first, last string) profile.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := profile.Patient{ID: id, FirstName: first, LastName: last, Email: strings.ToLower(first) + "@mail.test"}
	s.Patients[id] = p
	return p
}

func (s *StaticProfiles) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

func (s *StaticProfiles) GetDoctor(_ context.Context, id uuid.UUID) (*profile.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, ok := s.Doctors[id]
	if !ok {
		return nil, profile.ErrDoctorNotFound
	}
	return &d, nil
}

func (s *StaticProfiles) GetPatient(_ context.Context, id uuid.UUID) (*profile.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Patients[id]
	if !ok {
		return nil, profile.ErrPatientNotFound
	}
	return &p, nil
}
