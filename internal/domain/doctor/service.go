package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
)

type Service struct {
	doctors Repository
}

func NewService(doctors Repository) *Service {
	return &Service{doctors: doctors}
}

func (s *Service) Create(ctx context.Context, d *Doctor) error {
	if strings.TrimSpace(d.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if strings.TrimSpace(d.Email) == "" {
		return apperr.Invalid("email is required")
	}
	if d.FeePaise < 0 {
		return apperr.Invalid("fee must not be negative")
	}
	if d.ExperienceYears < 0 {
		return apperr.Invalid("experience must not be negative")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, department string, approvedOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, department, approvedOnly, limit, offset)
}

func (s *Service) Update(ctx context.Context, d *Doctor) error {
	if d.FeePaise < 0 {
		return apperr.Invalid("fee must not be negative")
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Approve(ctx, id)
}

// SetAvailability replaces the doctor's weekly slots. Each slot must be a
// well-formed window with start before end; overlapping windows on the same
// day are rejected.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, slots []WeeklySlot) error {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return err
	}

	type window struct{ start, end int }
	byDay := make(map[int][]window)

	for _, slot := range slots {
		start, err := slot.StartMinutes()
		if err != nil {
			return apperr.Invalid("%v", err)
		}
		end, err := slot.EndMinutes()
		if err != nil {
			return apperr.Invalid("%v", err)
		}
		if start >= end {
			return apperr.Invalid("slot %s-%s on %s: start must be before end", slot.StartTime, slot.EndTime, slot.Day)
		}
		for _, w := range byDay[int(slot.Day)] {
			if start < w.end && end > w.start {
				return apperr.Invalid("slot %s-%s on %s overlaps another slot", slot.StartTime, slot.EndTime, slot.Day)
			}
		}
		byDay[int(slot.Day)] = append(byDay[int(slot.Day)], window{start, end})
	}

	return s.doctors.SetSlots(ctx, doctorID, slots)
}

// AddSlot appends one availability window, checked against the doctor's
// existing windows on the same day.
func (s *Service) AddSlot(ctx context.Context, doctorID uuid.UUID, slot WeeklySlot) (*WeeklySlot, error) {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	start, err := slot.StartMinutes()
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	end, err := slot.EndMinutes()
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	if start >= end {
		return nil, apperr.Invalid("slot %s-%s on %s: start must be before end", slot.StartTime, slot.EndTime, slot.Day)
	}

	for _, existing := range d.Slots {
		if existing.Day != slot.Day {
			continue
		}
		es, err := existing.StartMinutes()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		ee, err := existing.EndMinutes()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if start < ee && end > es {
			return nil, apperr.Invalid("slot %s-%s on %s overlaps another slot", slot.StartTime, slot.EndTime, slot.Day)
		}
	}

	slot.DoctorID = doctorID
	if err := s.doctors.AddSlot(ctx, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *Service) RemoveSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	return s.doctors.RemoveSlot(ctx, doctorID, slotID)
}
