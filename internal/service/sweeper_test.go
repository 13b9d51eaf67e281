package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/negotiation"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
)

func TestSweeper_ClosesExpiredThreads(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{OfferTTL: time.Millisecond})
	first := fx.open(t, 100)
	second := fx.open(t, 200)
	time.Sleep(5 * time.Millisecond)

	sweeper := NewExpirationSweeper(fx.store, fx.svc, time.Minute)
	closed := sweeper.SweepOnce(context.Background())
	assert.Equal(t, 2, closed)

	stored, err := fx.store.GetThread(context.Background(), first.ID)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusExpired, stored.Status)

	stored, err = fx.store.GetThread(context.Background(), second.ID)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusExpired, stored.Status)

	// Журнал пополнился системным событием expire.
	events, err := fx.store.History(context.Background(), first.ID)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, valueobject.EventKindExpire, events[1].Kind)
	assert.Equal(t, valueobject.ActorSystem, events[1].Actor)
}

func TestSweeper_SkipsLiveThreads(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{OfferTTL: time.Hour})
	fx.open(t, 100)

	sweeper := NewExpirationSweeper(fx.store, fx.svc, time.Minute)
	assert.Equal(t, 0, sweeper.SweepOnce(context.Background()))
}

func TestSweeper_RepeatSweepIsHarmless(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{OfferTTL: time.Millisecond})
	thread := fx.open(t, 100)
	time.Sleep(5 * time.Millisecond)

	sweeper := NewExpirationSweeper(fx.store, fx.svc, time.Minute)
	assert.Equal(t, 1, sweeper.SweepOnce(context.Background()))
	// Второй проход не находит работы и ничего не ломает.
	assert.Equal(t, 0, sweeper.SweepOnce(context.Background()))

	events, err := fx.store.History(context.Background(), thread.ID)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
}
