package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	AuthHandler   *AuthHandler
	AdminHandler  *AdminHandler
	HealthHandler *HealthHandler
}
