package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/slot-booking/internal/booking"
)

type GenerateSlotsRequest struct {
	ScheduleID string `json:"schedule_id"`
	StartDate  string `json:"start_date"` // YYYY-MM-DD
	EndDate    string `json:"end_date"`   // YYYY-MM-DD
	Mode       string `json:"mode,omitempty"`
}

type GenerateSlotsResponse struct {
	Created int `json:"created"`
}

type UpdateSlotRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type BulkUpdateItem struct {
	SlotID string `json:"slot_id"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type BulkUpdateRequest struct {
	Items []BulkUpdateItem `json:"items"`
}

type BulkUpdateResponse struct {
	SuccessCount int                     `json:"success_count"`
	ErrorCount   int                     `json:"error_count"`
	Results      []SlotResponse          `json:"results"`
	Errors       []booking.BulkItemError `json:"errors"`
}

type BookRequest struct {
	Notes string `json:"notes,omitempty"`
}

type SlotResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	ScheduleID    uuid.UUID  `json:"schedule_id"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Status        string     `json:"status"`
	BlockReason   *string    `json:"block_reason,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	SlotID        uuid.UUID `json:"slot_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

type SlotListResponse struct {
	Items []SlotResponse `json:"items"`
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:            s.ID,
		DoctorID:      s.DoctorID,
		ScheduleID:    s.ScheduleID,
		Date:          s.Date.Format("2006-01-02"),
		StartTime:     booking.ClockString(s.StartMin),
		EndTime:       booking.ClockString(s.EndMin),
		Status:        string(s.Status),
		BlockReason:   s.BlockReason,
		AppointmentID: s.AppointmentID,
	}
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		SlotID:        a.SlotID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		CreatedAt:     a.CreatedAt,
	}
}
