package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles understood by the backend.
const (
	RoleTraveler = "traveler"
	RoleHost     = "host"
	RoleGuide    = "guide"
	RoleAdmin    = "admin"
)

// Booking states reported by the backend.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// KYC states reported by the backend.
const (
	KYCNone     = "none"
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=traveler host guide"`
}

type Property struct {
	ID            string          `json:"id"`
	HostID        string          `json:"host_id"`
	Title         string          `json:"title"`
	City          string          `json:"city"`
	Description   string          `json:"description,omitempty"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	MaxGuests     int             `json:"max_guests"`
	Amenities     []string        `json:"amenities,omitempty"`
	Rating        float64         `json:"rating,omitempty"`
}

// PropertyFilter narrows SearchProperties. Zero fields are not sent.
type PropertyFilter struct {
	City      string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int `validate:"gte=0"`
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Amenities []string
	Page      int `validate:"gte=0"`
	PageSize  int `validate:"gte=0,lte=100"`
}

type Guide struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	City       string          `json:"city"`
	Languages  []string        `json:"languages,omitempty"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Rating     float64         `json:"rating,omitempty"`
}

// GuideFilter narrows SearchGuides. Zero fields are not sent.
type GuideFilter struct {
	City     string
	Language string
	Date     time.Time
	Page     int `validate:"gte=0"`
	PageSize int `validate:"gte=0,lte=100"`
}

type Booking struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	ListingID string          `json:"listing_id"`
	Status    string          `json:"status"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Guests    int             `json:"guests"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

type PropertyBookingRequest struct {
	PropertyID string    `json:"property_id" validate:"required"`
	CheckIn    time.Time `json:"check_in" validate:"required"`
	CheckOut   time.Time `json:"check_out" validate:"required,gtfield=CheckIn"`
	Guests     int       `json:"guests" validate:"min=1,max=50"`
}

type GuideBookingRequest struct {
	GuideID string    `json:"guide_id" validate:"required"`
	Date    time.Time `json:"date" validate:"required"`
	Hours   int       `json:"hours" validate:"min=1,max=12"`
	Guests  int       `json:"guests" validate:"min=1,max=30"`
}

// PropertyInput creates or replaces a host listing.
type PropertyInput struct {
	Title         string          `json:"title" validate:"required,max=200"`
	City          string          `json:"city" validate:"required"`
	Description   string          `json:"description,omitempty" validate:"max=5000"`
	PricePerNight decimal.Decimal `json:"price_per_night"`
	MaxGuests     int             `json:"max_guests" validate:"min=1,max=50"`
	Amenities     []string        `json:"amenities,omitempty" validate:"dive,required"`
}

type Profile struct {
	User
	Phone     string `json:"phone,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	KYCStatus string `json:"kyc_status,omitempty"`
}

// ProfileUpdate changes only the non-nil fields.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,e164"`
	Bio   *string `json:"bio,omitempty" validate:"omitempty,max=2000"`
}

// KYCSubmission describes the identity document uploaded with SubmitKYC.
type KYCSubmission struct {
	DocumentType   string `validate:"required,oneof=passport national_id driving_license"`
	DocumentNumber string `validate:"required,max=64"`
	FileName       string `validate:"required"`
}

type KYCRequest struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type KYCDecision struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty" validate:"required_without=Approve,max=500"`
}
