package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/circulo/surplus-gateway-go/internal/domain"
)

func TestTransition_AllowedPaths(t *testing.T) {
	allowed := []struct {
		from, to domain.TransactionStatus
	}{
		{domain.TransactionPending, domain.TransactionAccepted},
		{domain.TransactionPending, domain.TransactionCancelled},
		{domain.TransactionAccepted, domain.TransactionInTransit},
		{domain.TransactionAccepted, domain.TransactionCancelled},
		{domain.TransactionInTransit, domain.TransactionCompleted},
		{domain.TransactionInTransit, domain.TransactionCancelled},
	}

	for _, tc := range allowed {
		got, err := domain.Transition(tc.from, tc.to)
		if err != nil {
			t.Errorf("Transition(%s, %s): unexpected error %v", tc.from, tc.to, err)
		}
		if got != tc.to {
			t.Errorf("Transition(%s, %s) = %s", tc.from, tc.to, got)
		}
	}
}

func TestTransition_RejectedPaths(t *testing.T) {
	rejected := []struct {
		from, to domain.TransactionStatus
	}{
		{domain.TransactionPending, domain.TransactionCompleted},
		{domain.TransactionPending, domain.TransactionInTransit},
		{domain.TransactionAccepted, domain.TransactionAccepted},
		{domain.TransactionCompleted, domain.TransactionCancelled},
		{domain.TransactionCancelled, domain.TransactionPending},
		{domain.TransactionCancelled, domain.TransactionAccepted},
	}

	for _, tc := range rejected {
		_, err := domain.Transition(tc.from, tc.to)
		if err == nil {
			t.Errorf("Transition(%s, %s): expected error, got nil", tc.from, tc.to)
			continue
		}
		var invalid *domain.ErrInvalidTransition
		if !errors.As(err, &invalid) {
			t.Errorf("Transition(%s, %s): wrong error type %T", tc.from, tc.to, err)
			continue
		}
		if invalid.Current != tc.from || invalid.Attempted != tc.to {
			t.Errorf("error names %s->%s, want %s->%s", invalid.Current, invalid.Attempted, tc.from, tc.to)
		}
	}
}

func TestTransition_ErrorNamesBothStates(t *testing.T) {
	_, err := domain.Transition(domain.TransactionCompleted, domain.TransactionAccepted)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, string(domain.TransactionCompleted)) || !strings.Contains(msg, string(domain.TransactionAccepted)) {
		t.Errorf("error message should name current and attempted state: %q", msg)
	}
}

func TestProductStatusFor(t *testing.T) {
	cases := []struct {
		status domain.TransactionStatus
		want   domain.ProductStatus
		ok     bool
	}{
		{domain.TransactionAccepted, domain.ProductReserved, true},
		{domain.TransactionCancelled, domain.ProductAvailable, true},
		{domain.TransactionInTransit, domain.ProductInProgress, true},
		{domain.TransactionCompleted, domain.ProductCompleted, true},
		{domain.TransactionPending, "", false},
	}

	for _, tc := range cases {
		got, ok := domain.ProductStatusFor(tc.status)
		if ok != tc.ok {
			t.Errorf("ProductStatusFor(%s) ok = %v, want %v", tc.status, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Errorf("ProductStatusFor(%s) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, tc := range []struct {
		status domain.TransactionStatus
		want   bool
	}{
		{domain.TransactionPending, false},
		{domain.TransactionAccepted, false},
		{domain.TransactionInTransit, false},
		{domain.TransactionCompleted, true},
		{domain.TransactionCancelled, true},
	} {
		tx := domain.Transaction{Status: tc.status}
		if tx.Terminal() != tc.want {
			t.Errorf("Terminal() for %s = %v, want %v", tc.status, tx.Terminal(), tc.want)
		}
	}
}

func TestHasAnyAuthority(t *testing.T) {
	u := domain.User{Authorities: []string{domain.RoleCompany, domain.RoleUser}}

	if !u.HasAuthority(domain.RoleCompany) {
		t.Error("expected ROLE_COMPANY to be held")
	}
	if u.HasAuthority(domain.RoleAdmin) {
		t.Error("ROLE_ADMIN should not be held")
	}
	if !u.HasAnyAuthority(domain.RoleAdmin, domain.RoleCompany) {
		t.Error("expected any-of match on ROLE_COMPANY")
	}
	if u.HasAnyAuthority(domain.RoleAdmin, domain.RoleAssociation) {
		t.Error("expected no match")
	}
	if !u.HasAnyAuthority() {
		t.Error("empty authority list means unrestricted")
	}
}
