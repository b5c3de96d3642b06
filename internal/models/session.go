package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSessions — сколько активных сессий (устройств) хранится у пользователя.
const DefaultMaxSessions = 5

// Session — одна активная авторизация (устройство) пользователя.
// Хранится внутри User, отдельной коллекции/агрегата нет.
//
// RefreshTokenHash — SHA-256 от rid текущего refresh-токена (hex). Ни сам rid,
// ни токен на сервере не хранятся.
type Session struct {
	ID               uuid.UUID
	DeviceInfo       string
	RefreshTokenHash string
	CreatedAt        time.Time
	LastUsedAt       time.Time
	ExpiresAt        time.Time
}

// Expired сообщает, истёк ли абсолютный срок жизни сессии на момент now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionInfo — безопасное представление сессии для клиента (без хэша).
type SessionInfo struct {
	ID         uuid.UUID `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SessionList — упорядоченный список сессий: от самой старой к самой новой.
type SessionList []Session

// InsertWithCap добавляет сессию в конец и, если длина превысила n,
// вытесняет самые старые записи так, чтобы осталось ровно n.
// Возвращает вытесненные сессии. n <= 0 означает «без ограничения».
func (l *SessionList) InsertWithCap(s Session, n int) []Session {
	*l = append(*l, s)

	if n <= 0 || len(*l) <= n {
		return nil
	}

	drop := len(*l) - n
	evicted := make([]Session, drop)
	copy(evicted, (*l)[:drop])

	kept := make(SessionList, n)
	copy(kept, (*l)[drop:])
	*l = kept

	return evicted
}

// FindByHash возвращает указатель на сессию с данным хэшем rid или nil.
// Указатель ссылается на элемент списка и валиден до следующей мутации.
func (l SessionList) FindByHash(hash string) *Session {
	for i := range l {
		if l[i].RefreshTokenHash == hash {
			return &l[i]
		}
	}

	return nil
}

// FindByID возвращает сессию по идентификатору или nil.
func (l SessionList) FindByID(id uuid.UUID) *Session {
	for i := range l {
		if l[i].ID == id {
			return &l[i]
		}
	}

	return nil
}

// RemoveByHash удаляет сессию с данным хэшем. Возвращает true, если что-то удалено.
func (l *SessionList) RemoveByHash(hash string) bool {
	return l.removeFunc(func(s Session) bool { return s.RefreshTokenHash == hash }) > 0
}

// RemoveByID удаляет сессию по идентификатору. Возвращает true, если что-то удалено.
func (l *SessionList) RemoveByID(id uuid.UUID) bool {
	return l.removeFunc(func(s Session) bool { return s.ID == id }) > 0
}

// RemoveExpired удаляет все сессии, истёкшие на момент now, и возвращает их количество.
func (l *SessionList) RemoveExpired(now time.Time) int {
	return l.removeFunc(func(s Session) bool { return s.Expired(now) })
}

func (l *SessionList) removeFunc(match func(Session) bool) int {
	kept := (*l)[:0]
	removed := 0
	for _, s := range *l {
		if match(s) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	*l = kept

	return removed
}

// Infos возвращает представления сессий для клиента в исходном порядке.
func (l SessionList) Infos() []SessionInfo {
	out := make([]SessionInfo, 0, len(l))
	for _, s := range l {
		out = append(out, SessionInfo{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}

	return out
}

// Clone возвращает независимую копию списка.
func (l SessionList) Clone() SessionList {
	if l == nil {
		return nil
	}

	out := make(SessionList, len(l))
	copy(out, l)

	return out
}
