package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/followup"
)

var specializations = []string{
	"cardiology",
	"dermatology",
	"general",
	"neurology",
	"orthopedics",
	"pediatrics",
}

var symptoms = []string{
	"cough", "fever", "headache", "fatigue", "nausea", "dizziness",
	"rash", "back pain", "chest pain", "shortness of breath",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	log := config.NewLogger(cfg, "seed")
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors := ids(getInt("SEED_DOCTORS", 20))
	patients := ids(getInt("SEED_PATIENTS", 200))

	s := &seeder{
		appointments: appointment.NewPgRepository(pool),
		followUps:    followup.NewPgRepository(pool),
		patients:     patients,
		log:          log,
	}
	today := appointment.DateOf(time.Now())
	for day := -7; day <= 14; day++ {
		date := today.AddDate(0, 0, day)
		for _, doctorID := range doctors {
			if err := s.seedDay(ctx, doctorID, date, day < 0); err != nil {
				log.Fatal().Err(err).Msg("seed appointments")
			}
		}
	}

	roster := make([]string, 0, len(doctors))
	for i, id := range doctors {
		roster = append(roster, specializations[i%len(specializations)]+":"+id.String())
	}
	log.Info().
		Int("appointments", s.appointmentCount).
		Int("follow_ups", s.followUpCount).
		Str("emergency_doctors", strings.Join(roster, ",")).
		Msg("seed complete")
}

type seeder struct {
	appointments *appointment.PgRepository
	followUps    *followup.PgRepository
	patients     []uuid.UUID
	log          zerolog.Logger

	appointmentCount int
	followUpCount    int
}

// seedDay books a random subset of the doctor's half-hour slots between
// 09:00 and 17:00. Past days end COMPLETED or CANCELLED; some completed
// visits get a follow-up.
func (s *seeder) seedDay(ctx context.Context, doctorID uuid.UUID, date time.Time, past bool) error {
	for start := appointment.TimeOfDay(9 * 60); start < 17*60; start += 30 {
		if !gofakeit.Bool() {
			continue
		}
		a := &appointment.Appointment{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			PatientID: s.patients[gofakeit.Number(0, len(s.patients)-1)],
			Date:      date,
			StartTime: start,
			EndTime:   start + 30,
			Status:    pickStatus(past),
			Type:      appointment.TypeRegular,
			Reason:    gofakeit.Phrase(),
			Symptoms:  pickSymptoms(),
			Priority:  gofakeit.Number(appointment.MinPriority, appointment.MaxPriority),
			IsVirtual: gofakeit.Number(0, 4) == 0,
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				s.log.Debug().Str("doctor_id", doctorID.String()).Stringer("start", start).Msg("slot taken, skipping")
				continue
			}
			return err
		}
		s.appointmentCount++

		if a.Status == appointment.StatusCompleted && gofakeit.Number(0, 2) == 0 {
			if err := s.seedFollowUp(ctx, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) seedFollowUp(ctx context.Context, a *appointment.Appointment) error {
	f := &followup.FollowUp{
		ID:                    uuid.New(),
		OriginalAppointmentID: a.ID,
		DoctorID:              a.DoctorID,
		PatientID:             a.PatientID,
		RecommendedDate:       a.Date.AddDate(0, 0, gofakeit.Number(3, 30)),
		Reason:                "review: " + gofakeit.Phrase(),
		Status:                followup.StatusPending,
		UrgencyLevel:          gofakeit.Number(followup.MinUrgency, followup.MaxUrgency),
	}
	if err := s.followUps.Create(ctx, f); err != nil {
		if errors.Is(err, followup.ErrDuplicateFollowUp) {
			return nil
		}
		return err
	}
	s.followUpCount++
	return nil
}

func pickStatus(past bool) appointment.Status {
	n := gofakeit.Number(0, 9)
	if past {
		if n < 8 {
			return appointment.StatusCompleted
		}
		return appointment.StatusCancelled
	}
	if n < 6 {
		return appointment.StatusPending
	}
	return appointment.StatusApproved
}

func pickSymptoms() []string {
	n := gofakeit.Number(0, 3)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, symptoms[gofakeit.Number(0, len(symptoms)-1)])
	}
	return out
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
