package doctor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Doctor is a practitioner who can be booked for consultations. FeePaise is
// the consultation fee in the currency's minor unit and is what the booking
// coordinator charges through the payment gateway.
type Doctor struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Email              string       `json:"email"`
	Phone              string       `json:"phone,omitempty"`
	Department         string       `json:"department"`
	ExperienceYears    int          `json:"experience_years"`
	FeePaise           int64        `json:"fee_paise"`
	IsApproved         bool         `json:"is_approved"`
	LastBookingAttempt *time.Time   `json:"last_booking_attempt,omitempty"`
	Slots              []WeeklySlot `json:"slots,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// WeeklySlot is a recurring availability window, e.g. Monday 09:00-13:00.
// Times are clock strings in 24h "HH:MM" form.
type WeeklySlot struct {
	ID        uuid.UUID    `json:"id"`
	DoctorID  uuid.UUID    `json:"doctor_id"`
	Day       time.Weekday `json:"day"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
}

// StartMinutes returns the slot's opening time as minutes after midnight.
func (s WeeklySlot) StartMinutes() (int, error) {
	return ParseClock(s.StartTime)
}

// EndMinutes returns the slot's closing time as minutes after midnight.
func (s WeeklySlot) EndMinutes() (int, error) {
	return ParseClock(s.EndTime)
}

// ParseClock converts a 24h "HH:MM" clock string to minutes after midnight.
func ParseClock(clock string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", clock)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", clock)
	}
	return h*60 + m, nil
}
