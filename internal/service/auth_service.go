package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mzlad1/BenchPOS-sub001/internal/config"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// roleRank orders roles for permission checks. A role satisfies any
// requirement at or below its own rank.
var roleRank = map[string]int{
	model.RoleCashier: 1,
	model.RoleManager: 2,
	model.RoleAdmin:   3,
}

// RoleSatisfies reports whether have covers the required role.
func RoleSatisfies(have, required string) bool {
	return roleRank[have] >= roleRank[required]
}

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error)
	Logout(ctx context.Context, userID uuid.UUID)
	CheckPermission(ctx context.Context, userID uuid.UUID, required string) (*dto.PermissionResponse, error)
	CreateUser(ctx context.Context, req dto.CreateUserRequest) (*dto.UserResponse, error)
	ListUsers(ctx context.Context) ([]dto.UserResponse, error)
	GetUser(ctx context.Context, id uuid.UUID) (*dto.UserResponse, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req dto.UpdateUserRequest) (*dto.UserResponse, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	RequestPasswordReset(ctx context.Context, email string) error
}

type authService struct {
	repo       repository.UserRepository
	activity   ActivityService
	dispatcher *worker.Dispatcher
	cfg        *config.Config
}

func NewAuthService(repo repository.UserRepository, activity ActivityService, dispatcher *worker.Dispatcher, cfg *config.Config) AuthService {
	return &authService{repo: repo, activity: activity, dispatcher: dispatcher, cfg: cfg}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != model.UserActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	_ = s.repo.TouchLastLogin(ctx, user.ID, now)
	user.LastLogin = &now
	s.activity.Record(ctx, &user.ID, "login", user.Email, nil)

	return s.tokenPair(user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	token, err := jwt.Parse(refreshToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("refresh token invalid or expired")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("malformed token")
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("malformed token")
	}
	uid, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, errors.New("malformed token")
	}

	user, err := s.repo.FindByID(ctx, uid)
	if err != nil || user.Status != model.UserActive {
		return nil, errors.New("user not found or inactive")
	}
	return s.tokenPair(user)
}

// Logout only records the audit entry: JWTs expire client-side and there is
// no server-side session to tear down.
func (s *authService) Logout(ctx context.Context, userID uuid.UUID) {
	detail := userID.String()
	if user, err := s.repo.FindByID(ctx, userID); err == nil {
		detail = user.Email
	}
	s.activity.Record(ctx, &userID, "logout", detail, nil)
}

func (s *authService) CheckPermission(ctx context.Context, userID uuid.UUID, required string) (*dto.PermissionResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.PermissionResponse{
		Allowed: user.Status == model.UserActive && RoleSatisfies(user.Role, required),
		Role:    user.Role,
	}, nil
}

func (s *authService) CreateUser(ctx context.Context, req dto.CreateUserRequest) (*dto.UserResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		Status:       model.UserActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	resp := userToResponse(user)
	return &resp, nil
}

// ListUsers includes inactive and soft-deleted rows: the admin screen shows
// complete history and there is no hard delete.
func (s *authService) ListUsers(ctx context.Context) ([]dto.UserResponse, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(&users[i])
	}
	return resp, nil
}

func (s *authService) GetUser(ctx context.Context, id uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := userToResponse(user)
	return &resp, nil
}

func (s *authService) UpdateUser(ctx context.Context, id uuid.UUID, req dto.UpdateUserRequest) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.New("user not found")
	}
	if user.Status == model.UserDeleted {
		return nil, errors.New("user is deleted")
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Status != "" {
		user.Status = req.Status
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hash)
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	resp := userToResponse(user)
	return &resp, nil
}

// DeleteUser soft-deletes: the row stays for audit linkage and listings.
func (s *authService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetStatus(ctx, id, model.UserDeleted); err != nil {
		return err
	}
	s.activity.Record(ctx, nil, "user_deleted", id.String(), &id)
	return nil
}

// RequestPasswordReset issues a short-lived reset token by email. The
// response is identical whether the address exists or not.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil || user.Status != model.UserActive {
		return nil
	}
	resetToken, err := s.generateToken(user, 30*time.Minute)
	if err != nil {
		return err
	}
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.EnqueueEmail(ctx, worker.EmailJobPayload{
		ToEmail: user.Email,
		Subject: "Password reset",
		Body:    "Use this token to reset your password within 30 minutes:\n\n" + resetToken,
	})
}

func (s *authService) tokenPair(user *model.User) (*dto.LoginResponse, error) {
	accessToken, err := s.generateToken(user, time.Duration(s.cfg.JWTExpirationHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.generateToken(user, time.Duration(s.cfg.JWTRefreshHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    s.cfg.JWTExpirationHours * 3600,
		User:         userToResponse(user),
	}, nil
}

func (s *authService) generateToken(user *model.User, duration time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(duration).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func userToResponse(u *model.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:     u.ID.String(),
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Status: u.Status,
	}
	if u.LastLogin != nil {
		s := u.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &s
	}
	return resp
}
