package reservation

import (
	"context"
	"fmt"
	"time"
)

// PricingResolver validates referral codes, quotes prices, and records redemptions.
type PricingResolver struct {
	store ReferralStore
	options
}

// NewPricingResolver wires a PricingResolver.
func NewPricingResolver(store ReferralStore, opts ...Option) (*PricingResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: referral store is nil", ErrInvalidServiceConfig)
	}
	return &PricingResolver{store: store, options: buildOptions(opts)}, nil
}

// Validate checks that code is usable by customerID right now and returns its terms.
func (resolver *PricingResolver) Validate(ctx context.Context, code ReferralCode, customerID CustomerID) (ReferralTerms, error) {
	terms, err := resolver.store.GetReferralTerms(ctx, code)
	if err != nil {
		return ReferralTerms{}, err
	}
	counts, err := resolver.store.CountRedemptions(ctx, code, customerID)
	if err != nil {
		return ReferralTerms{}, err
	}
	if err := checkReferralUsable(terms, counts, resolver.now()); err != nil {
		return ReferralTerms{}, WrapError(operationRedeem, "referral_code", "rejected", err)
	}
	return terms, nil
}

// Quote prices a booking. A zero code yields no discount. The final price never goes below zero.
func (resolver *PricingResolver) Quote(ctx context.Context, basePrice PriceCents, code ReferralCode, customerID CustomerID) (PriceQuote, error) {
	quote := PriceQuote{BasePrice: basePrice, FinalPrice: basePrice}
	if code.IsZero() {
		return quote, nil
	}
	terms, err := resolver.Validate(ctx, code, customerID)
	if err != nil {
		return PriceQuote{}, err
	}
	quote.Discount = terms.DiscountFor(basePrice)
	quote.FinalPrice = basePrice - quote.Discount
	if quote.FinalPrice < 0 {
		quote.FinalPrice = 0
	}
	quote.ReferralCode = code
	return quote, nil
}

// Reserve holds one use of code for a booking that is being placed. The pending redemption counts
// against the per-customer and global limits until Redeem confirms it or ReleaseReservation drops it.
// Reserving again for the same booking is a no-op.
func (resolver *PricingResolver) Reserve(ctx context.Context, code ReferralCode, customerID CustomerID, bookingID BookingID) error {
	operationError := resolver.store.WithReferralTx(ctx, func(ctx context.Context, txStore ReferralStore) error {
		terms, err := txStore.GetReferralTerms(ctx, code)
		if err != nil {
			return err
		}
		_, found, err := txStore.FindRedemption(ctx, code, bookingID)
		if err != nil || found {
			return err
		}
		counts, err := txStore.CountRedemptions(ctx, code, customerID)
		if err != nil {
			return err
		}
		if err := checkReferralUsable(terms, counts, resolver.now()); err != nil {
			return WrapError(operationReserve, "referral_code", "rejected", err)
		}
		return txStore.InsertRedemption(ctx, ReferralRedemption{
			Code:       code,
			CustomerID: customerID,
			BookingID:  bookingID,
			Status:     RedemptionPending,
			RedeemedAt: resolver.now(),
		})
	})
	resolver.logOperation(ctx, OperationLog{
		Operation:  operationReserve,
		CustomerID: customerID,
		BookingID:  bookingID,
		Detail:     code.String(),
		Error:      operationError,
	})
	return operationError
}

// Redeem consumes the code for a confirmed booking, confirming its pending redemption when one exists.
// Repeating it for the same booking is a no-op.
func (resolver *PricingResolver) Redeem(ctx context.Context, code ReferralCode, customerID CustomerID, bookingID BookingID) error {
	operationError := resolver.store.WithReferralTx(ctx, func(ctx context.Context, txStore ReferralStore) error {
		terms, err := txStore.GetReferralTerms(ctx, code)
		if err != nil {
			return err
		}
		existing, found, err := txStore.FindRedemption(ctx, code, bookingID)
		if err != nil {
			return err
		}
		if found {
			if existing.Status == RedemptionRedeemed {
				return nil
			}
			return txStore.ConfirmRedemption(ctx, code, bookingID, resolver.now())
		}
		counts, err := txStore.CountRedemptions(ctx, code, customerID)
		if err != nil {
			return err
		}
		if err := checkReferralLimits(terms, counts); err != nil {
			return err
		}
		return txStore.InsertRedemption(ctx, ReferralRedemption{
			Code:       code,
			CustomerID: customerID,
			BookingID:  bookingID,
			Status:     RedemptionRedeemed,
			RedeemedAt: resolver.now(),
		})
	})
	resolver.logOperation(ctx, OperationLog{
		Operation:  operationRedeem,
		CustomerID: customerID,
		BookingID:  bookingID,
		Detail:     code.String(),
		Error:      operationError,
	})
	return operationError
}

// ReleaseReservation frees the pending use held by a booking that will not confirm.
// A confirmed redemption is never released.
func (resolver *PricingResolver) ReleaseReservation(ctx context.Context, code ReferralCode, bookingID BookingID) error {
	err := resolver.store.DeletePendingRedemption(ctx, code, bookingID)
	resolver.logOperation(ctx, OperationLog{
		Operation: operationRelease,
		BookingID: bookingID,
		Detail:    code.String(),
		Error:     err,
	})
	return err
}

// PutTerms creates or replaces the terms of a code.
func (resolver *PricingResolver) PutTerms(ctx context.Context, terms ReferralTerms) error {
	if err := terms.Validate(); err != nil {
		return err
	}
	return resolver.store.PutReferralTerms(ctx, terms)
}

func checkReferralUsable(terms ReferralTerms, counts RedemptionCounts, now time.Time) error {
	if !terms.Active {
		return fmt.Errorf("%w: code is inactive", ErrInvalidReferral)
	}
	if !terms.ExpiresAt.IsZero() && !now.Before(terms.ExpiresAt) {
		return ErrReferralExpired
	}
	return checkReferralLimits(terms, counts)
}

// checkReferralLimits skips activity and expiry; those only gate quotes.
func checkReferralLimits(terms ReferralTerms, counts RedemptionCounts) error {
	if terms.PerCustomerLimit > 0 && counts.ByCustomer >= int64(terms.PerCustomerLimit) {
		return fmt.Errorf("%w: per-customer limit reached", ErrReferralAlreadyUsed)
	}
	if terms.MaxRedemptions > 0 && counts.Total >= int64(terms.MaxRedemptions) {
		return fmt.Errorf("%w: redemption cap reached", ErrReferralAlreadyUsed)
	}
	return nil
}
