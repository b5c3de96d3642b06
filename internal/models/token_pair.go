package models

import "time"

// TokenPair — токены, выдаваемые при регистрации/входе/обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT, возвращается в теле ответа;
//   - RefreshToken — долгоживущий JWT с rid, уходит клиенту только в cookie;
//     пуст после регистрации (сессия появляется только после входа);
//   - RefreshExpiresAt — абсолютный срок жизни сессии (нулевой, если RefreshToken пуст).
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
