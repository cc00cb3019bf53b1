package ports

import (
	"context"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/resident"
)

// ResidentAPI is the privileged slice of the REST API used by dashboard pages.
// Calls carry the portal's backend session.
type ResidentAPI interface {
	Announcements(ctx context.Context) ([]resident.Announcement, error)
	PostAnnouncement(ctx context.Context, a resident.Announcement) error
	PaymentsFor(ctx context.Context, email string) ([]resident.Payment, error)
	Coupons(ctx context.Context) ([]resident.Coupon, error)
	PendingAgreements(ctx context.Context) ([]resident.Agreement, error)
	// AcceptAgreement marks the agreement checked and promotes its owner to member.
	AcceptAgreement(ctx context.Context, id, email string) error
	AdminSummary(ctx context.Context) (resident.AdminSummary, error)

	Apartments(ctx context.Context) ([]resident.Apartment, error)
	RequestAgreement(ctx context.Context, a resident.Agreement) error
	// AgreementFor returns the lease agreement of email.
	AgreementFor(ctx context.Context, email string) (resident.Agreement, error)

	CreateCoupon(ctx context.Context, c resident.Coupon) error
	UpdateCoupon(ctx context.Context, id string, c resident.Coupon) error
	DeleteCoupon(ctx context.Context, id string) error
	ValidateCoupon(ctx context.Context, code string) (resident.CouponCheck, error)

	Users(ctx context.Context) ([]resident.UserRecord, error)
	// SetUserRole overwrites the role of email. Cached roles for email become stale.
	SetUserRole(ctx context.Context, email string, role domainauth.Role) error

	// CreatePaymentIntent starts a card payment and returns the gateway client secret.
	CreatePaymentIntent(ctx context.Context, amount float64, email string) (string, error)
	RecordPayment(ctx context.Context, p resident.Payment) error
}
