// Package negotiation содержит чистый автомат переходов торга.
// Автомат не знает ни о хранилище, ни о транспорте: он получает текущее
// состояние и входное действие и возвращает следующее состояние либо отказ.
// Та же функция используется и для валидации входящих действий, и для
// свёртки журнала, поэтому кэш треда не может разойтись с журналом.
package negotiation

import (
	"fmt"
	"time"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// DefaultMaxRounds ограничивает количество контрпредложений в одном торге.
const DefaultMaxRounds = 3

// Rules — бизнес-параметры автомата. MaxRounds и срок жизни предложения
// настраиваются конфигурацией, а не зашиты в переходы.
type Rules struct {
	MaxRounds int
	// OfferTTL — срок ответа на актуальное предложение; ноль отключает дедлайны.
	OfferTTL time.Duration
}

func (r Rules) maxRounds() int {
	if r.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return r.MaxRounds
}

// State — полное состояние торга с точки зрения автомата.
// Пустой Status означает, что торг ещё не открыт первым предложением.
type State struct {
	Status       valueobject.NegotiationStatus
	CurrentPrice *float64
	RoundCount   int
	LastActor    valueobject.Actor
	ExpiresAt    *time.Time
}

// Input — одно входящее действие.
type Input struct {
	Actor valueobject.Actor
	Kind  valueobject.EventKind
	Price *float64
	At    time.Time
}

// Transition применяет действие к состоянию. Функция тотальна: для любой
// комбинации она возвращает либо новое состояние, либо типизированный отказ
// с причиной. Побочных эффектов нет.
func (r Rules) Transition(st State, in Input) (State, error) {
	if !in.Actor.IsValid() {
		return st, apperror.InvalidTransition("неизвестный актор")
	}
	if !in.Kind.IsValid() {
		return st, apperror.InvalidTransition("неизвестное действие")
	}

	if st.Status == "" {
		return r.open(st, in)
	}

	if st.Status.IsTerminal() {
		return st, apperror.InvalidTransition("торг уже закрыт")
	}

	if st.Status == valueobject.NegotiationStatusAccepted {
		// Принятый торг ждёт конвертации в заказ; журнальные события ему не нужны.
		return st, apperror.InvalidTransition("предложение уже принято и ожидает оформления заказа")
	}

	switch in.Kind {
	case valueobject.EventKindPropose:
		return st, apperror.InvalidTransition("торг уже открыт первым предложением")
	case valueobject.EventKindCancel:
		return r.cancel(st, in)
	case valueobject.EventKindExpire:
		return r.expire(st, in)
	case valueobject.EventKindAccept:
		return r.accept(st, in)
	case valueobject.EventKindReject:
		return r.reject(st, in)
	case valueobject.EventKindCounter:
		return r.counter(st, in)
	}

	return st, apperror.InvalidTransition("неизвестное действие")
}

// open обрабатывает первое предложение: покупатель открывает торг сам,
// мастер — приглашением по своей позиции.
func (r Rules) open(st State, in Input) (State, error) {
	if in.Kind != valueobject.EventKindPropose {
		return st, apperror.InvalidTransition("торг ещё не открыт первым предложением")
	}
	if !in.Actor.IsParticipant() {
		return st, apperror.InvalidTransition("открыть торг может только участник")
	}
	if err := validPrice(in.Price); err != nil {
		return st, err
	}

	next := State{
		Status:       valueobject.NegotiationStatusPending,
		CurrentPrice: in.Price,
		RoundCount:   0,
		LastActor:    in.Actor,
	}
	next.ExpiresAt = r.deadlineFrom(in.At)
	return next, nil
}

func (r Rules) accept(st State, in Input) (State, error) {
	if err := respondingParty(st, in); err != nil {
		return st, err
	}
	return State{
		Status:       valueobject.NegotiationStatusAccepted,
		CurrentPrice: st.CurrentPrice,
		RoundCount:   st.RoundCount,
		LastActor:    in.Actor,
	}, nil
}

func (r Rules) reject(st State, in Input) (State, error) {
	if err := respondingParty(st, in); err != nil {
		return st, err
	}
	return State{
		Status:       valueobject.NegotiationStatusRejected,
		CurrentPrice: st.CurrentPrice,
		RoundCount:   st.RoundCount,
		LastActor:    in.Actor,
	}, nil
}

func (r Rules) counter(st State, in Input) (State, error) {
	if err := respondingParty(st, in); err != nil {
		return st, err
	}
	if st.RoundCount >= r.maxRounds() {
		return st, apperror.InvalidTransition(fmt.Sprintf("достигнут лимит раундов торга (%d): примите, отклоните или отмените", r.maxRounds()))
	}
	if err := validPrice(in.Price); err != nil {
		return st, err
	}

	next := State{
		Status:       valueobject.NegotiationStatusCounterOffered,
		CurrentPrice: in.Price,
		RoundCount:   st.RoundCount + 1,
		LastActor:    in.Actor,
	}
	next.ExpiresAt = r.deadlineFrom(in.At)
	return next, nil
}

func (r Rules) cancel(st State, in Input) (State, error) {
	// Отмена доступна обеим сторонам в любой нетерминальной фазе,
	// в том числе автору актуального предложения.
	if !in.Actor.IsParticipant() {
		return st, apperror.InvalidTransition("отменить торг может только участник")
	}
	return State{
		Status:       valueobject.NegotiationStatusCancelled,
		CurrentPrice: st.CurrentPrice,
		RoundCount:   st.RoundCount,
		LastActor:    in.Actor,
	}, nil
}

func (r Rules) expire(st State, in Input) (State, error) {
	if in.Actor != valueobject.ActorSystem {
		return st, apperror.InvalidTransition("перевести торг в expired может только система")
	}
	if st.ExpiresAt == nil {
		return st, apperror.InvalidTransition("у торга нет срока ответа")
	}
	// Срок истекает строго после дедлайна: в сам момент дедлайна ответ ещё возможен.
	if !in.At.After(*st.ExpiresAt) {
		return st, apperror.InvalidTransition("срок ответа ещё не истёк")
	}
	return State{
		Status:       valueobject.NegotiationStatusExpired,
		CurrentPrice: st.CurrentPrice,
		RoundCount:   st.RoundCount,
		LastActor:    valueobject.ActorSystem,
	}, nil
}

// respondingParty проверяет строгое чередование сторон: отвечать на
// предложение может только противоположный участник. Это закрывает
// сценарий, когда мастер сам принимает собственную контрцену.
func respondingParty(st State, in Input) error {
	if !in.Actor.IsParticipant() {
		return apperror.InvalidTransition("отвечать в торге может только участник")
	}
	if in.Actor == st.LastActor {
		return apperror.InvalidTransition("нельзя отвечать на собственное предложение")
	}
	return nil
}

func validPrice(price *float64) error {
	if price == nil {
		return apperror.InvalidTransition("предложение должно содержать цену")
	}
	if _, err := valueobject.NewPrice(*price, ""); err != nil {
		return apperror.InvalidTransition("цена должна быть положительной")
	}
	return nil
}

func (r Rules) deadlineFrom(at time.Time) *time.Time {
	if r.OfferTTL <= 0 {
		return nil
	}
	deadline := at.Add(r.OfferTTL)
	return &deadline
}

// Replay сворачивает журнал торга тем же Transition, которым валидируются
// живые действия. Кэшированные поля треда обязаны совпадать с результатом
// свёртки; расхождение означает повреждение данных.
func (r Rules) Replay(events []*entity.LedgerEvent) (State, error) {
	var st State
	for i, ev := range events {
		if ev.Sequence != int64(i)+1 {
			return State{}, apperror.New(apperror.ErrCodeInternal,
				fmt.Sprintf("журнал торга повреждён: ожидался номер %d, получен %d", i+1, ev.Sequence))
		}
		next, err := r.Transition(st, Input{
			Actor: ev.Actor,
			Kind:  ev.Kind,
			Price: ev.Price,
			At:    ev.CreatedAt,
		})
		if err != nil {
			return State{}, apperror.Wrap(err, apperror.ErrCodeInternal,
				fmt.Sprintf("журнал торга повреждён: событие %d невалидно", ev.Sequence))
		}
		st = next
	}
	return st, nil
}

// Matches сверяет кэш треда со свёрнутым состоянием. Completed допустим
// вместо accepted только при наличии ссылки на заказ: сама конвертация
// в журнал не пишется.
func Matches(st State, t *entity.NegotiationThread) bool {
	status := t.Status
	if status == valueobject.NegotiationStatusCompleted {
		if t.OrderID == nil {
			return false
		}
		status = valueobject.NegotiationStatusAccepted
	}
	if st.Status != status || st.RoundCount != t.RoundCount || st.LastActor != t.LastActor {
		return false
	}
	switch {
	case st.CurrentPrice == nil && t.CurrentPrice == nil:
		return true
	case st.CurrentPrice == nil || t.CurrentPrice == nil:
		return false
	}
	return *st.CurrentPrice == *t.CurrentPrice
}
