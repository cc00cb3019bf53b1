// Package resident holds the building-management records shown on dashboard pages.
// They are read from and written to the REST API; the portal keeps no copy.
package resident

import (
	"math"
	"strings"
	"time"
)

// AgreementStatus is the review state of a lease agreement request.
type AgreementStatus string

const (
	AgreementPending AgreementStatus = "pending"
	AgreementChecked AgreementStatus = "checked"
)

// Agreement is a resident's request to lease an apartment.
type Agreement struct {
	ID          string          `json:"_id,omitempty"`
	UserName    string          `json:"userName"`
	UserEmail   string          `json:"userEmail"`
	FloorNo     int             `json:"floorNo"`
	BlockName   string          `json:"blockName"`
	ApartmentNo string          `json:"apartmentNo"`
	RoomNo      string          `json:"roomNo,omitempty"`
	Rent        float64         `json:"rent"`
	Status      AgreementStatus `json:"status"`
	CreatedAt   time.Time       `json:"createdAt,omitzero"`
}

// Announcement is a building notice posted by an admin.
type Announcement struct {
	ID          string    `json:"_id,omitempty"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required,max=5000"`
	PostedBy    string    `json:"postedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Normalize trims user-entered fields.
func (a Announcement) Normalize() Announcement {
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	return a
}

// Payment is one recorded rent payment.
type Payment struct {
	ID            string    `json:"_id,omitempty"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Amount        float64   `json:"amount"`
	Block         string    `json:"block"`
	Floor         int       `json:"floor"`
	Apartment     string    `json:"apartment"`
	Month         string    `json:"month"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Coupon is a rent discount code managed by admins. Discount is a percentage.
type Coupon struct {
	ID          string  `json:"_id,omitempty"`
	Title       string  `json:"title" validate:"required,max=100"`
	Description string  `json:"description" validate:"required,max=1000"`
	Code        string  `json:"code" validate:"required,alphanum,max=32"`
	Discount    float64 `json:"discount" validate:"gt=0,lte=100"`
	ValidTill   string  `json:"validTill" validate:"required,datetime=2006-01-02"`
}

// Normalize trims user-entered fields and upper-cases the code.
func (c Coupon) Normalize() Coupon {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.ValidTill = strings.TrimSpace(c.ValidTill)
	return c
}

// CouponCheck is the backend's verdict on a coupon code.
type CouponCheck struct {
	Valid              bool    `json:"valid"`
	DiscountPercentage float64 `json:"discountPercentage"`
}

// ApplyDiscount returns rent reduced by percent, rounded to cents. Percentages
// outside (0, 100] leave the rent unchanged.
func ApplyDiscount(rent, percent float64) float64 {
	if percent <= 0 || percent > 100 {
		return rent
	}
	return math.Round((rent-rent*percent/100)*100) / 100
}

// PaymentQuote is what a member is about to pay for one month of their lease.
type PaymentQuote struct {
	Agreement Agreement `json:"agreement"`
	Month     string    `json:"month"`
	Coupon    string    `json:"coupon,omitempty"`
	Discount  float64   `json:"discount,omitempty"`
	Rent      float64   `json:"rent"`
	Amount    float64   `json:"amount"`
}

// PaymentIntent is a started card payment; the browser confirms it with the gateway.
type PaymentIntent struct {
	ClientSecret string       `json:"clientSecret"`
	Quote        PaymentQuote `json:"quote"`
}

// PaymentConfirmation is what the browser reports after the gateway accepted the card.
type PaymentConfirmation struct {
	Month         string `json:"month" validate:"required,max=32"`
	Coupon        string `json:"coupon,omitempty" validate:"omitempty,alphanum,max=32"`
	TransactionID string `json:"transactionId" validate:"required,max=128"`
}

// PaymentCompleted is the status recorded for a confirmed card payment.
const PaymentCompleted = "completed"

// Apartment is a leasable unit.
type Apartment struct {
	ID          string  `json:"_id"`
	BlockName   string  `json:"blockName"`
	FloorNo     int     `json:"floorNo"`
	ApartmentNo string  `json:"apartmentNo"`
	Rent        float64 `json:"rent"`
	Available   bool    `json:"available"`
}

// AgreementFor builds a pending lease request for apartment by the named resident.
func AgreementFor(apt Apartment, name, email string) Agreement {
	return Agreement{
		UserName:    name,
		UserEmail:   email,
		FloorNo:     apt.FloorNo,
		BlockName:   apt.BlockName,
		ApartmentNo: apt.ApartmentNo,
		Rent:        apt.Rent,
		Status:      AgreementPending,
	}
}

// UserRecord is a backend user row as listed for admins.
type UserRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AdminSummary aggregates the numbers on the admin profile page.
type AdminSummary struct {
	Apartments         int     `json:"apartments"`
	AvailablePercent   float64 `json:"available_percent"`
	UnavailablePercent float64 `json:"unavailable_percent"`
	Users              int     `json:"users"`
	Members            int     `json:"members"`
	PendingAgreements  int     `json:"pending_agreements"`
}

// Members returns the users whose role is member.
func Members(users []UserRecord) []UserRecord {
	out := make([]UserRecord, 0, len(users))
	for _, u := range users {
		if u.Role == "member" {
			out = append(out, u)
		}
	}
	return out
}

// Summarize computes the admin summary from raw listings.
func Summarize(apartments []Apartment, agreements []Agreement, users []UserRecord) AdminSummary {
	s := AdminSummary{Apartments: len(apartments)}
	if len(apartments) > 0 {
		avail := 0
		for _, a := range apartments {
			if a.Available {
				avail++
			}
		}
		s.AvailablePercent = float64(avail) * 100 / float64(len(apartments))
		s.UnavailablePercent = 100 - s.AvailablePercent
	}
	for _, u := range users {
		switch u.Role {
		case "member":
			s.Members++
		case "user":
			s.Users++
		}
	}
	for _, a := range agreements {
		if a.Status == "" || a.Status == AgreementPending {
			s.PendingAgreements++
		}
	}
	return s
}
