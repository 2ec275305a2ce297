package contextkeys

// Используем кастомный тип, чтобы избежать коллизий
type contextKey string

// CurrentUserKey - ключ, по которому auth middleware кладет в gin.Context
// свежезагруженную модель пользователя (а не claims из токена)
const CurrentUserKey = contextKey("current_user")
