package service

import (
	"context"
	"fmt"
	"strings"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/resident"
	apperrors "github.com/target/towertrack-portal/internal/errors"
)

// AcceptAgreement checks an agreement and promotes its requester to member.
// The promoted identity's cached role is dropped so their portals pick up the change.
func (p *Portal) AcceptAgreement(ctx context.Context, id, email string) error {
	id = strings.TrimSpace(id)
	email = domainauth.NormalizeKey(email)
	if id == "" {
		return apperrors.ValidationField("id", "agreement id is required")
	}
	if email == "" {
		return apperrors.ValidationField("email", "requester email is required")
	}
	if err := p.residents.AcceptAgreement(ctx, id, email); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "agreement accepted", "agreement", id, "user", email)
	return p.reg.InvalidateRole(ctx, email)
}

// PostAnnouncement publishes a notice signed by the current identity.
func (p *Portal) PostAnnouncement(ctx context.Context, a resident.Announcement) error {
	id, err := p.signedInAs("post announcements")
	if err != nil {
		return err
	}
	a = a.Normalize()
	if err := validateStruct(p.reg.validate, a); err != nil {
		return err
	}
	a.PostedBy = id.Key()
	a.CreatedAt = p.reg.now().UTC()
	return p.residents.PostAnnouncement(ctx, a)
}

// signedInAs returns the current identity, or an unauthenticated error naming action.
func (p *Portal) signedInAs(action string) (domainauth.Identity, error) {
	snap := p.ids.Snapshot()
	if !snap.IsAuthenticated() {
		return domainauth.Identity{}, apperrors.Unauthenticated("sign in to " + action)
	}
	return *snap.Identity, nil
}

// RequestAgreement files a lease request for an available apartment on behalf of the
// signed-in resident. Block, floor and rent come from the apartment listing.
func (p *Portal) RequestAgreement(ctx context.Context, apartmentID string) (resident.Agreement, error) {
	id, err := p.signedInAs("request an apartment")
	if err != nil {
		return resident.Agreement{}, err
	}
	apartmentID = strings.TrimSpace(apartmentID)
	if apartmentID == "" {
		return resident.Agreement{}, apperrors.ValidationField("apartment", "apartment is required")
	}
	apartments, err := p.residents.Apartments(ctx)
	if err != nil {
		return resident.Agreement{}, fmt.Errorf("list apartments: %w", err)
	}
	var apt *resident.Apartment
	for i := range apartments {
		if apartments[i].ID == apartmentID {
			apt = &apartments[i]
			break
		}
	}
	if apt == nil {
		return resident.Agreement{}, apperrors.NotFoundf("apartment %s not found", apartmentID)
	}
	if !apt.Available {
		return resident.Agreement{}, apperrors.ValidationField("apartment", "apartment is already leased")
	}

	name := id.DisplayName
	if name == "" {
		name = id.Email
	}
	agr := resident.AgreementFor(*apt, name, id.Key())
	agr.CreatedAt = p.reg.now().UTC()
	if err := p.residents.RequestAgreement(ctx, agr); err != nil {
		return resident.Agreement{}, err
	}
	p.logger.InfoContext(ctx, "agreement requested", "apartment", apt.ApartmentNo, "user", agr.UserEmail)
	return agr, nil
}

// SaveCoupon creates a coupon when id is empty and replaces coupon id otherwise.
func (p *Portal) SaveCoupon(ctx context.Context, id string, c resident.Coupon) error {
	c = c.Normalize()
	if err := validateStruct(p.reg.validate, c); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		if err := p.residents.CreateCoupon(ctx, c); err != nil {
			return err
		}
		p.logger.InfoContext(ctx, "coupon created", "code", c.Code)
		return nil
	}
	if err := p.residents.UpdateCoupon(ctx, id, c); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "coupon updated", "coupon", id, "code", c.Code)
	return nil
}

// DeleteCoupon removes a coupon.
func (p *Portal) DeleteCoupon(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.ValidationField("id", "coupon id is required")
	}
	if err := p.residents.DeleteCoupon(ctx, id); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "coupon deleted", "coupon", id)
	return nil
}

// Members lists the residents whose role is member.
func (p *Portal) Members(ctx context.Context) ([]resident.UserRecord, error) {
	users, err := p.residents.Users(ctx)
	if err != nil {
		return nil, err
	}
	return resident.Members(users), nil
}

// DemoteMember returns a member to the user role and drops their cached role so
// their live portals lose member pages on the next request.
func (p *Portal) DemoteMember(ctx context.Context, email string) error {
	email = domainauth.NormalizeKey(email)
	if email == "" {
		return apperrors.ValidationField("email", "member email is required")
	}
	if email == p.ids.Snapshot().Key() {
		return apperrors.ValidationField("email", "you cannot change your own role")
	}
	if err := p.residents.SetUserRole(ctx, email, domainauth.RoleUser); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "member demoted", "user", email)
	return p.reg.InvalidateRole(ctx, email)
}

// QuotePayment prices one month of the signed-in member's lease, applying coupon
// when one is given. An unknown or expired coupon is a validation error.
func (p *Portal) QuotePayment(ctx context.Context, month, coupon string) (resident.PaymentQuote, error) {
	id, err := p.signedInAs("pay rent")
	if err != nil {
		return resident.PaymentQuote{}, err
	}
	month = strings.TrimSpace(month)
	if month == "" {
		return resident.PaymentQuote{}, apperrors.ValidationField("month", "month is required")
	}
	agr, err := p.residents.AgreementFor(ctx, id.Key())
	if err != nil {
		if apperrors.IsNotFound(err) {
			return resident.PaymentQuote{}, apperrors.ValidationField("agreement", "no lease agreement on file")
		}
		return resident.PaymentQuote{}, err
	}

	q := resident.PaymentQuote{Agreement: agr, Month: month, Rent: agr.Rent, Amount: agr.Rent}
	if coupon = strings.ToUpper(strings.TrimSpace(coupon)); coupon != "" {
		check, err := p.residents.ValidateCoupon(ctx, coupon)
		if err != nil {
			return resident.PaymentQuote{}, fmt.Errorf("validate coupon: %w", err)
		}
		if !check.Valid {
			return resident.PaymentQuote{}, apperrors.ValidationField("coupon", "coupon is invalid or expired")
		}
		q.Coupon = coupon
		q.Discount = check.DiscountPercentage
		q.Amount = resident.ApplyDiscount(agr.Rent, check.DiscountPercentage)
	}
	return q, nil
}

// StartPayment quotes the month and opens a card payment for the quoted amount.
func (p *Portal) StartPayment(ctx context.Context, month, coupon string) (resident.PaymentIntent, error) {
	q, err := p.QuotePayment(ctx, month, coupon)
	if err != nil {
		return resident.PaymentIntent{}, err
	}
	if q.Amount <= 0 {
		return resident.PaymentIntent{}, apperrors.ValidationField("amount", "nothing to pay for this month")
	}
	secret, err := p.residents.CreatePaymentIntent(ctx, q.Amount, q.Agreement.UserEmail)
	if err != nil {
		return resident.PaymentIntent{}, err
	}
	return resident.PaymentIntent{ClientSecret: secret, Quote: q}, nil
}

// ConfirmPayment records a payment the gateway accepted. The amount is re-quoted
// here so the browser never chooses what gets recorded.
func (p *Portal) ConfirmPayment(ctx context.Context, c resident.PaymentConfirmation) (resident.Payment, error) {
	c.Month = strings.TrimSpace(c.Month)
	c.Coupon = strings.TrimSpace(c.Coupon)
	c.TransactionID = strings.TrimSpace(c.TransactionID)
	if err := validateStruct(p.reg.validate, c); err != nil {
		return resident.Payment{}, err
	}
	q, err := p.QuotePayment(ctx, c.Month, c.Coupon)
	if err != nil {
		return resident.Payment{}, err
	}
	pay := resident.Payment{
		Name:          q.Agreement.UserName,
		Email:         q.Agreement.UserEmail,
		Amount:        q.Amount,
		Block:         q.Agreement.BlockName,
		Floor:         q.Agreement.FloorNo,
		Apartment:     q.Agreement.ApartmentNo,
		Month:         q.Month,
		TransactionID: c.TransactionID,
		Status:        resident.PaymentCompleted,
		CreatedAt:     p.reg.now().UTC(),
	}
	if err := p.residents.RecordPayment(ctx, pay); err != nil {
		return resident.Payment{}, err
	}
	p.logger.InfoContext(ctx, "payment recorded", "user", pay.Email, "month", pay.Month, "amount", pay.Amount)
	return pay, nil
}
