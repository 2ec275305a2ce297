// Package testutil содержит in-memory реализации репозиториев и
// провайдеров для тестов, которым не нужны Postgres и SMTP.
package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/repositories"

	"github.com/google/uuid"
)

// MemUserRepo - потокобезопасная in-memory реализация UserRepository.
// Возвращает копии записей, как это делала бы настоящая БД.
type MemUserRepo struct {
	mu      sync.Mutex
	users   map[string]*models.User
	markErr error
}

func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{users: make(map[string]*models.User)}
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *MemUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return clone(u), nil
}

func (r *MemUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *MemUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.users {
		if u.Email == user.Email {
			return repositories.ErrUserAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	r.users[user.ID] = clone(user)
	return nil
}

func (r *MemUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.Name = user.Name
	stored.Role = user.Role
	stored.IsActive = user.IsActive
	return nil
}

func (r *MemUserRepo) BumpSessionVersion(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	u.SessionVersion++
	return clone(u), nil
}

func (r *MemUserRepo) SetPassword(ctx context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	now := time.Now()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	u.SessionVersion++
	return nil
}

func (r *MemUserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.IsEmailVerified = true
	return nil
}

func (r *MemUserRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (r *MemUserRepo) SetActive(ctx context.Context, userID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

// DeleteUser удаляет запись напрямую, минуя бизнес-логику.
func (r *MemUserRepo) DeleteUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
}

// FailMarkEmailVerified заставляет MarkEmailVerified возвращать err,
// пока err не сброшен в nil.
func (r *MemUserRepo) FailMarkEmailVerified(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markErr = err
}

// SetPasswordChangedAt выставляет отметку напрямую, не трогая
// session_version.
func (r *MemUserRepo) SetPasswordChangedAt(userID string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.PasswordChangedAt = &ts
	}
}

// MemCodeRepo - in-memory реализация VerificationCodeRepository.
type MemCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*models.VerificationCode
}

func NewMemCodeRepo() *MemCodeRepo {
	return &MemCodeRepo{codes: make(map[string]*models.VerificationCode)}
}

func (r *MemCodeRepo) Replace(ctx context.Context, code *models.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.codes {
		if c.UserID == code.UserID && c.Purpose == code.Purpose {
			delete(r.codes, id)
		}
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	c := *code
	r.codes[code.ID] = &c
	return nil
}

func (r *MemCodeRepo) FindValid(ctx context.Context, userID string, purpose models.VerificationPurpose, code string) (*models.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.UserID == userID && c.Purpose == purpose && c.Code == code && c.ExpiresAt.After(time.Now()) {
			cc := *c
			return &cc, nil
		}
	}
	return nil, repositories.ErrCodeNotFound
}

func (r *MemCodeRepo) Consume(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[id]; !ok {
		return repositories.ErrCodeNotFound
	}
	delete(r.codes, id)
	return nil
}

func (r *MemCodeRepo) PurgeExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.codes {
		if c.ExpiresAt.Before(time.Now()) {
			delete(r.codes, id)
			n++
		}
	}
	return n, nil
}

// ExpireCode сдвигает срок кода в прошлое.
func (r *MemCodeRepo) ExpireCode(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.codes[id]; ok {
		c.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// Len возвращает число хранимых кодов.
func (r *MemCodeRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

// CapturingEmailProvider запоминает последний отправленный код.
type CapturingEmailProvider struct {
	mu       sync.Mutex
	lastTo   string
	lastCode string
	sent     int
}

func (p *CapturingEmailProvider) SendVerificationCode(ctx context.Context, to, name, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTo, p.lastCode = to, code
	p.sent++
	return nil
}

func (p *CapturingEmailProvider) SendPasswordResetCode(ctx context.Context, to, name, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTo, p.lastCode = to, code
	p.sent++
	return nil
}

func (p *CapturingEmailProvider) LastCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCode
}

func (p *CapturingEmailProvider) SentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// WaitSent блокирует, пока число отправок не достигнет n. Отправка
// писем асинхронная, прямое чтение LastCode после вызова сервиса
// гонится с ней.
func (p *CapturingEmailProvider) WaitSent(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.SentCount() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent emails, got %d", n, p.SentCount())
}
