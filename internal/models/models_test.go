package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollabStatus_Transitions(t *testing.T) {
	all := []CollabStatus{CollabPending, CollabAccepted, CollabRejected, CollabCompleted}
	allowed := map[[2]CollabStatus]bool{
		{CollabPending, CollabAccepted}:   true,
		{CollabPending, CollabRejected}:   true,
		{CollabAccepted, CollabCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]CollabStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, CollabRejected.Terminal())
	assert.True(t, CollabCompleted.Terminal())
	assert.False(t, CollabAccepted.Terminal())
	assert.False(t, CollabStatus("archived").Valid())
}

func TestCanonicalPair_OrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	x1, y1 := CanonicalPair(a, b)
	x2, y2 := CanonicalPair(b, a)

	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
	assert.LessOrEqual(t, x1.String(), y1.String())
}

func TestChat_Other(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	c := Chat{ParticipantA: a, ParticipantB: b}

	assert.Equal(t, b, c.Other(a))
	assert.Equal(t, a, c.Other(b))
	assert.True(t, c.HasParticipant(a))
	assert.False(t, c.HasParticipant(uuid.New()))
}

func TestProfileBoost_ActiveAt(t *testing.T) {
	now := time.Now()

	active := ProfileBoost{Status: BoostActive, EndDate: now.Add(time.Hour)}
	endsNow := ProfileBoost{Status: BoostActive, EndDate: now}
	ended := ProfileBoost{Status: BoostActive, EndDate: now.Add(-time.Second)}
	expired := ProfileBoost{Status: BoostExpired, EndDate: now.Add(time.Hour)}

	assert.True(t, active.ActiveAt(now))
	assert.True(t, endsNow.ActiveAt(now))
	assert.False(t, ended.ActiveAt(now))
	assert.False(t, expired.ActiveAt(now))
}

func TestSubscription_Tier(t *testing.T) {
	var none *Subscription
	assert.Equal(t, PlanFree, none.Tier())
	assert.Equal(t, PlanProYearly, (&Subscription{Plan: PlanProYearly, Status: SubscriptionActive}).Tier())
	assert.Equal(t, PlanFree, (&Subscription{Plan: PlanProYearly, Status: SubscriptionCanceled}).Tier())
}

func TestValidator(t *testing.T) {
	var v Validator
	v.Check(true, "title", "required")
	require.NoError(t, v.Err())

	v.Check(false, "title", "required")
	v.Check(false, "body", "too long")
	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Equal(t, "validation: title: required; body: too long", err.Error())
}

func TestNewExternalServiceError_Kinds(t *testing.T) {
	assert.Equal(t, ExternalRateLimited, NewExternalServiceError("ai", 429, nil).Kind)
	assert.Equal(t, ExternalPaymentRequired, NewExternalServiceError("ai", 402, nil).Kind)
	assert.Equal(t, ExternalUpstream, NewExternalServiceError("ai", 503, nil).Kind)

	inner := errors.New("boom")
	assert.ErrorIs(t, NewExternalServiceError("stripe", 500, inner), inner)
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrValidation, ErrUnauthorized, ErrInvalidTransition,
		ErrConflict, ErrInvalidCredentials, ErrEmailNotVerified,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}
