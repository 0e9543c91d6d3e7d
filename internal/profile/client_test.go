package profile_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/profile"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/testutil"
)

func newClient(t *testing.T, baseURL string, withCache bool) *profile.Client {
	t.Helper()

	var cache redisclient.Cache
	if withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		cache = redisclient.NewCache(rdb)
	}

	return profile.NewClient(profile.Options{
		BaseURL:      baseURL,
		ProbeTimeout: 200 * time.Millisecond,
		CallTimeout:  200 * time.Millisecond,
		CacheTTL:     time.Minute,
	}, &http.Client{}, cache, zerolog.Nop())
}

func TestGetDoctor_Success(t *testing.T) {
	idp := testutil.NewFakeIdentity(t)
	id := uuid.New()
	idp.AddDoctor(profile.Doctor{ID: id, FirstName: "Ada", LastName: "Lovelace", Email: "ada@clinic.test", Specialization: "cardiology"})

	c := newClient(t, idp.URL(), false)

	d, err := c.GetDoctor(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if d.Email != "ada@clinic.test" || d.Specialization != "cardiology" {
		t.Errorf("unexpected doctor %+v", d)
	}
	if d.FullName() != "Dr. Ada Lovelace" {
		t.Errorf("FullName = %q", d.FullName())
	}
	if idp.ProbeCalls.Load() != 1 {
		t.Errorf("expected one probe, got %d", idp.ProbeCalls.Load())
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	idp := testutil.NewFakeIdentity(t)
	c := newClient(t, idp.URL(), false)

	_, err := c.GetPatient(context.Background(), uuid.New())
	if !errors.Is(err, profile.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Error("expected NotFound kind")
	}
}

func TestLookup_FailedProbeShortCircuits(t *testing.T) {
	idp := testutil.NewFakeIdentity(t)
	id := uuid.New()
	idp.AddPatient(profile.Patient{ID: id, FirstName: "Grace"})
	idp.SetHealthy(false)

	c := newClient(t, idp.URL(), false)

	_, err := c.GetPatient(context.Background(), id)
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if idp.ProfileCalls.Load() != 0 {
		t.Errorf("profile endpoint must not be called after a failed probe, got %d calls", idp.ProfileCalls.Load())
	}
}

func TestLookup_UnreachableService(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1", false)

	_, err := c.GetDoctor(context.Background(), uuid.New())
	if !errors.Is(err, profile.ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

func TestLookup_CachedSnapshotSkipsRemoteCalls(t *testing.T) {
	idp := testutil.NewFakeIdentity(t)
	id := uuid.New()
	idp.AddPatient(profile.Patient{ID: id, FirstName: "Grace", LastName: "Hopper", Email: "grace@mail.test"})

	c := newClient(t, idp.URL(), true)
	ctx := context.Background()

	if _, err := c.GetPatient(ctx, id); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	// identity going down must not break reads inside the snapshot TTL
	idp.SetHealthy(false)

	p, err := c.GetPatient(ctx, id)
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if p.FullName() != "Grace Hopper" {
		t.Errorf("FullName = %q", p.FullName())
	}
	if idp.ProfileCalls.Load() != 1 {
		t.Errorf("expected a single remote profile call, got %d", idp.ProfileCalls.Load())
	}
}
