package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/negotiation"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// memoryThreadStore — потокобезопасное in-memory хранилище тредов,
// воспроизводящее оптимистическую блокировку настоящего адаптера:
// AppendEvent проходит только при last_sequence == event.Sequence-1.
type memoryThreadStore struct {
	mu      sync.Mutex
	threads map[uuid.UUID]entity.NegotiationThread
	events  map[uuid.UUID][]*entity.LedgerEvent

	appendCalls int
	// beforeAppend выполняется под мьютексом перед проверкой номера;
	// используется для имитации проигранной гонки.
	beforeAppend func(store *memoryThreadStore, event *entity.LedgerEvent)
}

func newMemoryThreadStore() *memoryThreadStore {
	return &memoryThreadStore{
		threads: make(map[uuid.UUID]entity.NegotiationThread),
		events:  make(map[uuid.UUID][]*entity.LedgerEvent),
	}
}

func (s *memoryThreadStore) CreateThread(ctx context.Context, thread *entity.NegotiationThread, first *entity.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = *thread
	s.events[thread.ID] = append(s.events[thread.ID], first)
	return nil
}

func (s *memoryThreadStore) GetThread(ctx context.Context, id uuid.UUID) (*entity.NegotiationThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[id]
	if !ok {
		return nil, apperror.ErrThreadNotFound
	}
	copied := thread
	return &copied, nil
}

func (s *memoryThreadStore) AppendEvent(ctx context.Context, thread *entity.NegotiationThread, event *entity.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.beforeAppend != nil {
		hook := s.beforeAppend
		s.beforeAppend = nil
		hook(s, event)
	}

	stored, ok := s.threads[thread.ID]
	if !ok {
		return apperror.ErrThreadNotFound
	}
	if stored.LastSequence != event.Sequence-1 {
		return apperror.ErrSequenceConflict
	}
	s.threads[thread.ID] = *thread
	s.events[thread.ID] = append(s.events[thread.ID], event)
	return nil
}

func (s *memoryThreadStore) CompleteThread(ctx context.Context, threadID, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.threads[threadID]
	if !ok {
		return false, apperror.ErrThreadNotFound
	}
	if stored.Status != valueobject.NegotiationStatusAccepted || stored.OrderID != nil {
		return false, nil
	}
	stored.Status = valueobject.NegotiationStatusCompleted
	stored.OrderID = &orderID
	stored.ExpiresAt = nil
	s.threads[threadID] = stored
	return true, nil
}

func (s *memoryThreadStore) ListActiveByParticipant(ctx context.Context, userID uuid.UUID, role valueobject.Actor) ([]*entity.NegotiationThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.NegotiationThread
	for _, thread := range s.threads {
		if thread.Status.IsTerminal() {
			continue
		}
		if (role == valueobject.ActorCustomer && thread.CustomerID == userID) ||
			(role == valueobject.ActorSeller && thread.SellerID == userID) {
			copied := thread
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryThreadStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, thread := range s.threads {
		if !thread.Status.IsSweepable() || thread.ExpiresAt == nil {
			continue
		}
		if thread.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *memoryThreadStore) History(ctx context.Context, threadID uuid.UUID) ([]*entity.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.LedgerEvent(nil), s.events[threadID]...), nil
}

type fakeUsers struct {
	byID map[uuid.UUID]*models.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return user, nil
}

type fakeItems struct {
	byID map[uuid.UUID]*models.Item
}

func (f *fakeItems) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	item, ok := f.byID[id]
	if !ok {
		return nil, apperror.ErrItemNotFound
	}
	return item, nil
}

type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) Convert(ctx context.Context, thread *entity.NegotiationThread) (*models.PurchaseOrder, error) {
	args := m.Called(ctx, thread)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PurchaseOrder), args.Error(1)
}

type negotiationFixture struct {
	store     *memoryThreadStore
	converter *mockConverter
	svc       *NegotiationService

	customerID uuid.UUID
	sellerID   uuid.UUID
	itemID     uuid.UUID
}

func newNegotiationFixture(t *testing.T, rules negotiation.Rules) *negotiationFixture {
	t.Helper()

	customerID := uuid.New()
	sellerID := uuid.New()
	itemID := uuid.New()

	users := &fakeUsers{byID: map[uuid.UUID]*models.User{
		customerID: {ID: customerID, Role: models.RoleCustomer, IsActive: true},
		sellerID:   {ID: sellerID, Role: models.RoleSeller, IsActive: true},
	}}
	items := &fakeItems{byID: map[uuid.UUID]*models.Item{
		itemID: {ID: itemID, SellerID: sellerID, Title: "Керамическая ваза", ListPrice: 3500, IsActive: true},
	}}

	store := newMemoryThreadStore()
	converter := new(mockConverter)

	return &negotiationFixture{
		store:      store,
		converter:  converter,
		svc:        NewNegotiationService(store, users, items, converter, nil, rules),
		customerID: customerID,
		sellerID:   sellerID,
		itemID:     itemID,
	}
}

func (f *negotiationFixture) open(t *testing.T, price float64) *entity.NegotiationThread {
	t.Helper()
	thread, err := f.svc.CreateNegotiation(context.Background(), CreateNegotiationInput{
		InitiatorID:  f.customerID,
		CustomerID:   f.customerID,
		SellerID:     f.sellerID,
		ItemID:       &f.itemID,
		OpeningPrice: price,
	})
	if err != nil {
		t.Fatalf("не удалось открыть торг: %v", err)
	}
	return thread
}

func ptrFloat(v float64) *float64 { return &v }

func TestNegotiationService_HappyPath(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{MaxRounds: 3, OfferTTL: 48 * time.Hour})
	ctx := context.Background()

	thread := fx.open(t, 3000)
	assert.Equal(t, valueobject.NegotiationStatusPending, thread.Status)
	assert.Equal(t, int64(1), thread.LastSequence)
	assert.NotNil(t, thread.ExpiresAt)

	// Мастер выставляет встречную цену.
	thread, err := fx.svc.Respond(ctx, thread.ID, fx.sellerID, valueobject.EventKindCounter, ptrFloat(3400), nil)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusCounterOffered, thread.Status)
	assert.Equal(t, 1, thread.RoundCount)
	assert.Equal(t, 3400.0, *thread.CurrentPrice)

	// Покупатель принимает; торг сразу конвертируется в заказ.
	orderID := uuid.New()
	fx.converter.On("Convert", mock.Anything, mock.AnythingOfType("*entity.NegotiationThread")).
		Return(&models.PurchaseOrder{ID: orderID, FinalPrice: 3400}, nil).Once()

	thread, err = fx.svc.Respond(ctx, thread.ID, fx.customerID, valueobject.EventKindAccept, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusCompleted, thread.Status)
	assert.NotNil(t, thread.OrderID)
	assert.Equal(t, orderID, *thread.OrderID)
	assert.Nil(t, thread.ExpiresAt)

	// Журнал содержит ровно три события и сворачивается в accepted:
	// сама конвертация событием не является.
	events, err := fx.svc.History(ctx, thread.ID, fx.customerID)
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, valueobject.EventKindPropose, events[0].Kind)
	assert.Equal(t, valueobject.EventKindCounter, events[1].Kind)
	assert.Equal(t, valueobject.EventKindAccept, events[2].Kind)

	fx.converter.AssertExpectations(t)
}

func TestNegotiationService_CreateRejectsOutsider(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})

	_, err := fx.svc.CreateNegotiation(context.Background(), CreateNegotiationInput{
		InitiatorID:  uuid.New(),
		CustomerID:   fx.customerID,
		SellerID:     fx.sellerID,
		ItemID:       &fx.itemID,
		OpeningPrice: 1000,
	})
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)
}

func TestNegotiationService_CreateRejectsSelfNegotiation(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})

	// Торг с самим собой отклоняется до проверки ролей.
	_, err := fx.svc.CreateNegotiation(context.Background(), CreateNegotiationInput{
		InitiatorID:  fx.customerID,
		CustomerID:   fx.customerID,
		SellerID:     fx.customerID,
		ItemID:       &fx.itemID,
		OpeningPrice: 1000,
	})
	assert.ErrorIs(t, err, apperror.ErrSelfNegotiation)
}

func TestNegotiationService_CreateRejectsInvalidSubject(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	ctx := context.Background()

	// Чужая позиция каталога.
	foreignItem := uuid.New()
	fx.svc.items.(*fakeItems).byID[foreignItem] = &models.Item{
		ID: foreignItem, SellerID: uuid.New(), IsActive: true,
	}
	_, err := fx.svc.CreateNegotiation(ctx, CreateNegotiationInput{
		InitiatorID:  fx.customerID,
		CustomerID:   fx.customerID,
		SellerID:     fx.sellerID,
		ItemID:       &foreignItem,
		OpeningPrice: 1000,
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidSubject)

	// Ни позиции, ни описания кастомной работы.
	_, err = fx.svc.CreateNegotiation(ctx, CreateNegotiationInput{
		InitiatorID:  fx.customerID,
		CustomerID:   fx.customerID,
		SellerID:     fx.sellerID,
		OpeningPrice: 1000,
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidSubject)

	// Кастомная работа без позиции каталога допустима.
	spec := "Сервиз на шесть персон с ручной росписью"
	thread, err := fx.svc.CreateNegotiation(ctx, CreateNegotiationInput{
		InitiatorID:  fx.customerID,
		CustomerID:   fx.customerID,
		SellerID:     fx.sellerID,
		CustomSpec:   &spec,
		OpeningPrice: 1000,
	})
	assert.NoError(t, err)
	assert.Nil(t, thread.ItemID)
}

func TestNegotiationService_RespondRejectsOutsider(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 2000)

	outsider := uuid.New()
	fx.svc.users.(*fakeUsers).byID[outsider] = &models.User{ID: outsider, Role: models.RoleCustomer, IsActive: true}

	_, err := fx.svc.Respond(context.Background(), thread.ID, outsider, valueobject.EventKindAccept, nil, nil)
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)
}

func TestNegotiationService_RespondRejectsOwnOffer(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 2000)

	// Покупатель не может принять собственное предложение.
	_, err := fx.svc.Respond(context.Background(), thread.ID, fx.customerID, valueobject.EventKindAccept, nil, nil)
	assert.True(t, apperror.IsInvalidTransition(err), "ожидался отказ перехода, получено: %v", err)

	// Отмена собственного предложения при этом разрешена.
	cancelled, err := fx.svc.Cancel(context.Background(), thread.ID, fx.customerID, "передумал")
	assert.NoError(t, err)
	assert.True(t, cancelled)
}

func TestNegotiationService_RoundLimit(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{MaxRounds: 2})
	ctx := context.Background()
	thread := fx.open(t, 1000)

	var err error
	thread, err = fx.svc.Respond(ctx, thread.ID, fx.sellerID, valueobject.EventKindCounter, ptrFloat(1500), nil)
	assert.NoError(t, err)
	thread, err = fx.svc.Respond(ctx, thread.ID, fx.customerID, valueobject.EventKindCounter, ptrFloat(1200), nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, thread.RoundCount)

	// Лимит исчерпан: третья встречная цена отклоняется.
	_, err = fx.svc.Respond(ctx, thread.ID, fx.sellerID, valueobject.EventKindCounter, ptrFloat(1300), nil)
	assert.True(t, apperror.IsInvalidTransition(err))

	// Принять актуальную цену всё ещё можно.
	fx.converter.On("Convert", mock.Anything, mock.Anything).
		Return(&models.PurchaseOrder{ID: uuid.New(), FinalPrice: 1200}, nil).Once()
	thread, err = fx.svc.Respond(ctx, thread.ID, fx.sellerID, valueobject.EventKindAccept, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusCompleted, thread.Status)
}

func TestNegotiationService_TerminalThreadIsStale(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 900)

	cancelled, err := fx.svc.Cancel(context.Background(), thread.ID, fx.sellerID, "")
	assert.NoError(t, err)
	assert.True(t, cancelled)

	_, err = fx.svc.Respond(context.Background(), thread.ID, fx.sellerID, valueobject.EventKindAccept, nil, nil)
	assert.ErrorIs(t, err, apperror.ErrStaleNegotiation)
}

func TestNegotiationService_ExpireThread(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{OfferTTL: time.Millisecond})
	thread := fx.open(t, 500)
	time.Sleep(5 * time.Millisecond)

	expired, err := fx.svc.ExpireThread(context.Background(), thread.ID)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusExpired, expired.Status)
	assert.Equal(t, valueobject.ActorSystem, expired.LastActor)

	// Ответ после истечения срока — отказ stale.
	_, err = fx.svc.Respond(context.Background(), thread.ID, fx.sellerID, valueobject.EventKindAccept, nil, nil)
	assert.ErrorIs(t, err, apperror.ErrStaleNegotiation)
}

func TestNegotiationService_ExpireBeforeDeadline(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{OfferTTL: time.Hour})
	thread := fx.open(t, 500)

	_, err := fx.svc.ExpireThread(context.Background(), thread.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestNegotiationService_ConflictRetrySucceeds(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 800)

	// Пока покупатель отменяет, мастер успевает выставить встречную цену.
	// Отмена проигрывает гонку за номер 2, но после перечитывания треда
	// остаётся валидной и проходит со второй попытки под номером 3.
	fx.store.beforeAppend = func(store *memoryThreadStore, _ *entity.LedgerEvent) {
		stored := store.threads[thread.ID]
		price := 950.0
		stored.Status = valueobject.NegotiationStatusCounterOffered
		stored.CurrentPrice = &price
		stored.RoundCount = 1
		stored.LastActor = valueobject.ActorSeller
		stored.LastSequence = 2
		store.threads[thread.ID] = stored
		counter, _ := entity.NewLedgerEvent(thread.ID, 2, valueobject.ActorSeller, valueobject.EventKindCounter, &price, nil)
		store.events[thread.ID] = append(store.events[thread.ID], counter)
	}

	cancelled, err := fx.svc.Cancel(context.Background(), thread.ID, fx.customerID, "")
	assert.NoError(t, err)
	assert.True(t, cancelled)

	final, err := fx.store.GetThread(context.Background(), thread.ID)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusCancelled, final.Status)
	assert.Equal(t, int64(3), final.LastSequence)
	// Ровно два обращения: проигранная попытка и успешный повтор.
	assert.Equal(t, 2, fx.store.appendCalls)
}

func TestNegotiationService_ConflictRetryRejectedAfterAccept(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 800)

	// Конкурирующий accept мастера побеждает; встречная цена после
	// перечитывания невалидна и не пишется в журнал.
	fx.store.beforeAppend = func(store *memoryThreadStore, _ *entity.LedgerEvent) {
		stored := store.threads[thread.ID]
		stored.Status = valueobject.NegotiationStatusAccepted
		stored.LastActor = valueobject.ActorSeller
		stored.LastSequence = 2
		store.threads[thread.ID] = stored
		accept, _ := entity.NewLedgerEvent(thread.ID, 2, valueobject.ActorSeller, valueobject.EventKindAccept, nil, nil)
		store.events[thread.ID] = append(store.events[thread.ID], accept)
	}

	_, err := fx.svc.Respond(context.Background(), thread.ID, fx.sellerID, valueobject.EventKindCounter, ptrFloat(700), nil)
	assert.True(t, apperror.IsInvalidTransition(err), "ожидался отказ перехода, получено: %v", err)

	events, herr := fx.store.History(context.Background(), thread.ID)
	assert.NoError(t, herr)
	assert.Len(t, events, 2)
}

func TestNegotiationService_ConcurrentRespondSingleWinner(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 800)

	fx.converter.On("Convert", mock.Anything, mock.Anything).
		Return(&models.PurchaseOrder{ID: uuid.New(), FinalPrice: 800}, nil).Maybe()

	// Мастер одновременно принимает и выставляет встречную цену.
	// Оптимистическая блокировка пропускает ровно одно событие под номером 2.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = fx.svc.Respond(context.Background(), thread.ID, fx.sellerID, valueobject.EventKindAccept, nil, nil)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = fx.svc.Respond(context.Background(), thread.ID, fx.sellerID, valueobject.EventKindCounter, ptrFloat(950), nil)
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperror.IsInvalidTransition(err) || apperror.IsConflict(err),
				"проигравший должен получить типизированный отказ, получено: %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	events, err := fx.store.History(context.Background(), thread.ID)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, int64(2), events[1].Sequence)
}

func TestNegotiationService_AdapterFailureKeepsAccepted(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	ctx := context.Background()
	thread := fx.open(t, 800)

	fx.converter.On("Convert", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	accepted, err := fx.svc.Respond(ctx, thread.ID, fx.sellerID, valueobject.EventKindAccept, nil, nil)
	assert.Error(t, err)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeAdapterFailure, appErr.Code)
	// Переход записан: тред принят и ждёт повторной конвертации.
	assert.NotNil(t, accepted)
	assert.Equal(t, valueobject.NegotiationStatusAccepted, accepted.Status)

	stored, _ := fx.store.GetThread(ctx, thread.ID)
	assert.Equal(t, valueobject.NegotiationStatusAccepted, stored.Status)
	assert.Nil(t, stored.OrderID)

	// Повторная конвертация проходит и привязывает заказ.
	orderID := uuid.New()
	fx.converter.On("Convert", mock.Anything, mock.Anything).
		Return(&models.PurchaseOrder{ID: orderID, FinalPrice: 800}, nil)

	completed, err := fx.svc.RetryConversion(ctx, thread.ID, fx.customerID)
	assert.NoError(t, err)
	assert.Equal(t, valueobject.NegotiationStatusCompleted, completed.Status)
	assert.Equal(t, orderID, *completed.OrderID)

	// Повтор для уже завершённого треда — no-op с тем же заказом.
	again, err := fx.svc.RetryConversion(ctx, thread.ID, fx.sellerID)
	assert.NoError(t, err)
	assert.Equal(t, orderID, *again.OrderID)

	fx.converter.AssertExpectations(t)
}

func TestNegotiationService_HistoryRequiresParticipant(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	thread := fx.open(t, 800)

	_, err := fx.svc.History(context.Background(), thread.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)
}

func TestNegotiationService_ActiveNegotiationsByRole(t *testing.T) {
	fx := newNegotiationFixture(t, negotiation.Rules{})
	fx.open(t, 800)
	ctx := context.Background()

	asCustomer, err := fx.svc.ActiveNegotiations(ctx, fx.customerID, "customer")
	assert.NoError(t, err)
	assert.Len(t, asCustomer, 1)

	asSeller, err := fx.svc.ActiveNegotiations(ctx, fx.sellerID, "seller")
	assert.NoError(t, err)
	assert.Len(t, asSeller, 1)

	_, err = fx.svc.ActiveNegotiations(ctx, fx.customerID, "system")
	assert.Error(t, err)
}
