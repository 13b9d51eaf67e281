package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/negotiation"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/repository"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/goroutine"
	"github.com/ignatzorin/artisan-market-backend/internal/logger"
	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// IdentityResolver отдаёт пользователя для проверки роли и активности аккаунта.
type IdentityResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ItemReader отдаёт позицию каталога для валидации предмета торга.
type ItemReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
}

// MessageChannel доставляет участникам видимое в чате описание события торга.
// Доставка fire-and-forget: её сбой не откатывает переход.
type MessageChannel interface {
	PostEvent(ctx context.Context, threadID uuid.UUID, recipients []uuid.UUID, text string) error
}

// NegotiationService оркестрирует один торг: загружает тред, прогоняет
// действие через автомат, атомарно пишет событие в журнал и запускает
// побочные эффекты. Конфликт конкурентной записи повторяется один раз,
// остальные ошибки отдаются вызывающей стороне сразу.
type NegotiationService struct {
	repo      repository.NegotiationRepository
	users     IdentityResolver
	items     ItemReader
	converter OrderConverter
	channel   MessageChannel
	rules     negotiation.Rules
}

// NewNegotiationService создаёт сервис торга.
func NewNegotiationService(
	repo repository.NegotiationRepository,
	users IdentityResolver,
	items ItemReader,
	converter OrderConverter,
	channel MessageChannel,
	rules negotiation.Rules,
) *NegotiationService {
	return &NegotiationService{
		repo:      repo,
		users:     users,
		items:     items,
		converter: converter,
		channel:   channel,
		rules:     rules,
	}
}

// CreateNegotiationInput содержит данные для открытия торга.
type CreateNegotiationInput struct {
	InitiatorID  uuid.UUID
	CustomerID   uuid.UUID
	SellerID     uuid.UUID
	ItemID       *uuid.UUID
	CustomSpec   *string
	OpeningPrice float64
	Note         *string
}

// CreateNegotiation открывает торг первым предложением. Обычно инициатор —
// покупатель; мастер открывает торг приглашением по своей позиции.
func (s *NegotiationService) CreateNegotiation(ctx context.Context, in CreateNegotiationInput) (*entity.NegotiationThread, error) {
	if in.CustomerID == in.SellerID {
		return nil, apperror.ErrSelfNegotiation
	}
	if in.InitiatorID != in.CustomerID && in.InitiatorID != in.SellerID {
		return nil, apperror.ErrNotParticipant
	}

	customer, err := s.resolveActive(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	seller, err := s.resolveActive(ctx, in.SellerID)
	if err != nil {
		return nil, err
	}
	if customer.Role != models.RoleCustomer {
		return nil, apperror.New(apperror.ErrCodeValidation, "инициирующая сторона должна иметь роль покупателя")
	}
	if seller.Role != models.RoleSeller {
		return nil, apperror.New(apperror.ErrCodeValidation, "принимающая сторона должна иметь роль мастера")
	}

	if err := s.validateSubject(ctx, in); err != nil {
		return nil, err
	}

	thread, err := entity.NewNegotiationThread(in.CustomerID, in.SellerID, in.ItemID, in.CustomSpec)
	if err != nil {
		return nil, err
	}

	role, err := thread.RoleOf(in.InitiatorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	st, err := s.rules.Transition(negotiation.State{}, negotiation.Input{
		Actor: role,
		Kind:  valueobject.EventKindPropose,
		Price: &in.OpeningPrice,
		At:    now,
	})
	if err != nil {
		s.logRejected(thread.ID, role, valueobject.EventKindPropose, err)
		return nil, err
	}

	event, err := entity.NewLedgerEvent(thread.ID, 1, role, valueobject.EventKindPropose, &in.OpeningPrice, in.Note)
	if err != nil {
		return nil, err
	}
	event.CreatedAt = now
	applyState(thread, st, event.Sequence)

	if err := s.repo.CreateThread(ctx, thread, event); err != nil {
		return nil, err
	}

	s.notify(thread, event)
	return thread, nil
}

// Respond применяет действие участника к торгу: accept, reject, counter или cancel.
func (s *NegotiationService) Respond(ctx context.Context, threadID, actorID uuid.UUID, kind valueobject.EventKind, price *float64, note *string) (*entity.NegotiationThread, error) {
	if kind == valueobject.EventKindPropose || kind == valueobject.EventKindExpire {
		return nil, apperror.InvalidTransition("это действие недоступно в ответе на торг")
	}

	if _, err := s.resolveActive(ctx, actorID); err != nil {
		return nil, err
	}

	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	role, err := thread.RoleOf(actorID)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, thread, role, kind, price, note, true)
}

// Cancel — шорткат для Respond(..., cancel); доступен обеим сторонам
// в любой нетерминальной фазе.
func (s *NegotiationService) Cancel(ctx context.Context, threadID, actorID uuid.UUID, reason string) (bool, error) {
	var note *string
	if reason != "" {
		note = &reason
	}
	if _, err := s.Respond(ctx, threadID, actorID, valueobject.EventKindCancel, nil, note); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireThread переводит просроченный торг в expired системным актором.
// Идёт тем же атомарным путём, что и действия людей: гонку с живым ответом
// разрешает оптимистическая блокировка журнала.
func (s *NegotiationService) ExpireThread(ctx context.Context, threadID uuid.UUID) (*entity.NegotiationThread, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, thread, valueobject.ActorSystem, valueobject.EventKindExpire, nil, nil, true)
}

// ActiveNegotiations возвращает открытые торги пользователя в заданной роли.
func (s *NegotiationService) ActiveNegotiations(ctx context.Context, userID uuid.UUID, role string) ([]*entity.NegotiationThread, error) {
	actor, err := valueobject.NewActor(role)
	if err != nil {
		return nil, err
	}
	if !actor.IsParticipant() {
		return nil, apperror.New(apperror.ErrCodeValidation, "роль должна быть customer или seller")
	}
	return s.repo.ListActiveByParticipant(ctx, userID, actor)
}

// History возвращает полный журнал торга; доступен участникам и для
// закрытых тредов. Попутно сверяет кэш треда со свёрткой журнала.
func (s *NegotiationService) History(ctx context.Context, threadID, requesterID uuid.UUID) ([]*entity.LedgerEvent, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.IsParticipant(requesterID) {
		return nil, apperror.ErrNotParticipant
	}

	events, err := s.repo.History(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if st, ferr := s.rules.Replay(events); ferr != nil {
		s.logCorruption(threadID, ferr)
	} else if !negotiation.Matches(st, thread) {
		s.logCorruption(threadID, fmt.Errorf("кэш треда разошёлся со свёрткой журнала"))
	}

	return events, nil
}

// RetryConversion повторяет конвертацию принятого торга в заказ после
// сбоя адаптера. Для уже завершённого торга это no-op.
func (s *NegotiationService) RetryConversion(ctx context.Context, threadID, actorID uuid.UUID) (*entity.NegotiationThread, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.IsParticipant(actorID) {
		return nil, apperror.ErrNotParticipant
	}

	switch thread.Status {
	case valueobject.NegotiationStatusCompleted:
		return thread, nil
	case valueobject.NegotiationStatusAccepted:
		if err := s.completeAccepted(ctx, thread); err != nil {
			return thread, err
		}
		return thread, nil
	}
	return nil, apperror.InvalidTransition("конвертировать можно только принятый торг")
}

// apply — общий атомарный путь всех переходов. allowRetry включает один
// автоматический повтор после проигранной гонки за номер журнала.
func (s *NegotiationService) apply(ctx context.Context, thread *entity.NegotiationThread, actor valueobject.Actor, kind valueobject.EventKind, price *float64, note *string, allowRetry bool) (*entity.NegotiationThread, error) {
	if thread.Status.IsTerminal() {
		s.logRejected(thread.ID, actor, kind, apperror.ErrStaleNegotiation)
		return nil, apperror.ErrStaleNegotiation
	}

	now := time.Now()
	st, err := s.rules.Transition(stateOf(thread), negotiation.Input{
		Actor: actor,
		Kind:  kind,
		Price: price,
		At:    now,
	})
	if err != nil {
		s.logRejected(thread.ID, actor, kind, err)
		return nil, err
	}

	event, err := entity.NewLedgerEvent(thread.ID, thread.NextSequence(), actor, kind, price, note)
	if err != nil {
		return nil, err
	}
	event.CreatedAt = now

	updated := *thread
	applyState(&updated, st, event.Sequence)

	if err := s.repo.AppendEvent(ctx, &updated, event); err != nil {
		if errors.Is(err, apperror.ErrSequenceConflict) && allowRetry {
			// Перечитываем тред: если действие всё ещё валидно против
			// нового состояния, пробуем ровно ещё раз.
			reloaded, rerr := s.repo.GetThread(ctx, thread.ID)
			if rerr != nil {
				return nil, rerr
			}
			return s.apply(ctx, reloaded, actor, kind, price, note, false)
		}
		return nil, err
	}

	s.notify(&updated, event)

	if updated.Status == valueobject.NegotiationStatusAccepted {
		if err := s.completeAccepted(ctx, &updated); err != nil {
			// Тред остаётся accepted: конвертацию можно повторить,
			// не проходя торг заново.
			return &updated, err
		}
	}

	return &updated, nil
}

// completeAccepted конвертирует принятый торг в заказ ровно один раз и
// переводит тред в completed. Адаптер идемпотентен по идентификатору торга,
// поэтому повтор после сбоя не создаёт дублирующий заказ.
func (s *NegotiationService) completeAccepted(ctx context.Context, thread *entity.NegotiationThread) error {
	order, err := s.converter.Convert(ctx, thread)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"thread_id": thread.ID,
				"error":     err.Error(),
			}).Error("Конвертация торга в заказ не удалась")
		}
		return apperror.Wrap(err, apperror.ErrCodeAdapterFailure, "не удалось сконвертировать торг в заказ")
	}

	completed, err := s.repo.CompleteThread(ctx, thread.ID, order.ID)
	if err != nil {
		return err
	}
	if !completed {
		// Параллельный вызов уже завершил тред; перечитываем итог.
		reloaded, rerr := s.repo.GetThread(ctx, thread.ID)
		if rerr != nil {
			return rerr
		}
		*thread = *reloaded
		return nil
	}

	thread.Status = valueobject.NegotiationStatusCompleted
	thread.OrderID = &order.ID
	thread.ExpiresAt = nil
	return nil
}

func (s *NegotiationService) validateSubject(ctx context.Context, in CreateNegotiationInput) error {
	if in.ItemID == nil {
		if in.CustomSpec == nil || *in.CustomSpec == "" {
			return apperror.ErrInvalidSubject
		}
		return nil
	}

	item, err := s.items.GetByID(ctx, *in.ItemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.ErrInvalidSubject
		}
		return err
	}
	if item.SellerID != in.SellerID || !item.IsActive {
		return apperror.ErrInvalidSubject
	}
	return nil
}

func (s *NegotiationService) resolveActive(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperror.ErrAccountInactive
	}
	return user, nil
}

// notify отправляет участникам чат-сообщение о событии. Сбой доставки
// логируется и не влияет на результат перехода.
func (s *NegotiationService) notify(thread *entity.NegotiationThread, event *entity.LedgerEvent) {
	if s.channel == nil {
		return
	}

	text := renderEventText(event)
	recipients := []uuid.UUID{thread.CustomerID, thread.SellerID}
	threadID := thread.ID

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.channel.PostEvent(ctx, threadID, recipients, text); err != nil && logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"thread_id": threadID,
				"error":     err.Error(),
			}).Warn("Не удалось доставить чат-событие торга")
		}
	})
}

// logRejected пишет каждую отклонённую попытку перехода: журнал хранит
// только успешные события, а для разбора споров нужны и отказы.
func (s *NegotiationService) logRejected(threadID uuid.UUID, actor valueobject.Actor, kind valueobject.EventKind, err error) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"thread_id": threadID,
		"actor":     actor,
		"action":    kind,
		"reason":    err.Error(),
	}).Info("Отклонена попытка перехода торга")
}

func (s *NegotiationService) logCorruption(threadID uuid.UUID, err error) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"thread_id": threadID,
		"error":     err.Error(),
	}).Error("Журнал торга не согласован с кэшем треда")
}

func stateOf(thread *entity.NegotiationThread) negotiation.State {
	return negotiation.State{
		Status:       thread.Status,
		CurrentPrice: thread.CurrentPrice,
		RoundCount:   thread.RoundCount,
		LastActor:    thread.LastActor,
		ExpiresAt:    thread.ExpiresAt,
	}
}

func applyState(thread *entity.NegotiationThread, st negotiation.State, sequence int64) {
	thread.Status = st.Status
	thread.CurrentPrice = st.CurrentPrice
	thread.RoundCount = st.RoundCount
	thread.LastActor = st.LastActor
	thread.ExpiresAt = st.ExpiresAt
	thread.LastSequence = sequence
	thread.UpdatedAt = time.Now()
}

func renderEventText(event *entity.LedgerEvent) string {
	who := actorName(event.Actor)
	switch event.Kind {
	case valueobject.EventKindPropose:
		return fmt.Sprintf("%s предложил цену %.2f", who, derefPrice(event.Price))
	case valueobject.EventKindCounter:
		return fmt.Sprintf("%s выставил встречную цену %.2f", who, derefPrice(event.Price))
	case valueobject.EventKindAccept:
		return fmt.Sprintf("%s принял предложение", who)
	case valueobject.EventKindReject:
		return fmt.Sprintf("%s отклонил предложение", who)
	case valueobject.EventKindCancel:
		return fmt.Sprintf("%s отменил торг", who)
	case valueobject.EventKindExpire:
		return "Срок ответа истёк, торг закрыт"
	}
	return ""
}

func actorName(actor valueobject.Actor) string {
	switch actor {
	case valueobject.ActorCustomer:
		return "Покупатель"
	case valueobject.ActorSeller:
		return "Мастер"
	}
	return "Система"
}

func derefPrice(price *float64) float64 {
	if price == nil {
		return 0
	}
	return *price
}
