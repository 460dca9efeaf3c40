// Package server is the stub pet-adoption backend. It implements the
// collaborator contracts the client consumes, for local development and
// integration tests.
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/config"
	"github.com/spec-kit/adoption-client/internal/domain"
)

const accountKey = "auth_account"

// Application sub-codes carried in the response envelope. Unauthorized
// codes share the 401 prefix the client keys on.
const (
	codeOK           = 200
	codeBadRequest   = 400
	codeUnauthorized = 401
	codeExpiredToken = 40101
	codeForbidden    = 403
	codeNotFound     = 404
)

// Server bundles the fiber app and its dependencies.
type Server struct {
	app           *fiber.App
	accounts      AccountRepository
	refreshTokens RefreshTokenStore
	tokens        *TokenManager
	logger        *zap.Logger
	refreshTTL    time.Duration
	pets          []domain.Pet
}

// New wires routes and middleware.
func New(cfg config.StubConfig, accounts AccountRepository, refreshTokens RefreshTokenStore, logger *zap.Logger) *Server {
	s := &Server{
		app:           fiber.New(fiber.Config{DisableStartupMessage: true}),
		accounts:      accounts,
		refreshTokens: refreshTokens,
		tokens:        NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:        logger,
		refreshTTL:    time.Duration(cfg.RefreshTokenTTLHours) * time.Hour,
		pets:          seedPets(),
	}

	s.app.Post("/user/register", s.register(cfg.BcryptCost))
	s.app.Post("/user/login", s.login)
	s.app.Post("/user/refresh-token", s.refresh)

	s.app.Get("/user/profile", s.requireAuth, s.getProfile)
	s.app.Put("/user/profile", s.requireAuth, s.updateProfile)
	s.app.Get("/user/pets", s.requireAuth, s.listPets(false))
	s.app.Get("/admin/pets", s.requireAuth, s.requireAdmin, s.listPets(true))

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"code": codeOK, "message": "ok", "data": data})
}

func fail(c *fiber.Ctx, status, code int, message string) error {
	return c.Status(status).JSON(fiber.Map{"code": code, "message": message})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (s *Server) register(bcryptCost int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req registerRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload")
		}
		if req.Email == "" || req.Password == "" {
			return fail(c, fiber.StatusBadRequest, codeBadRequest, "email and password required")
		}
		if _, err := s.accounts.GetByEmail(c.Context(), req.Email); err == nil {
			return fail(c, fiber.StatusBadRequest, codeBadRequest, "email already registered")
		}

		hash, err := HashPassword(req.Password, bcryptCost)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, codeBadRequest, "hashing failed")
		}
		account := &Account{
			Email:        req.Email,
			PasswordHash: hash,
			DisplayName:  req.DisplayName,
			Role:         domain.RoleUser,
		}
		if err := s.accounts.Create(c.Context(), account); err != nil {
			return fail(c, fiber.StatusInternalServerError, codeBadRequest, "account creation failed")
		}
		return s.grantResponse(c, account)
	}
}

func (s *Server) login(c *fiber.Ctx) error {
	var creds domain.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return fail(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload")
	}

	account, err := s.accounts.GetByEmail(c.Context(), creds.Email)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid credentials")
	}
	if err := ComparePassword(account.PasswordHash, creds.Password); err != nil {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid credentials")
	}
	return s.grantResponse(c, account)
}

func (s *Server) grantResponse(c *fiber.Ctx, account *Account) error {
	accessToken, expiresAt, err := s.tokens.Generate(account)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeBadRequest, "token generation failed")
	}
	refreshToken, err := s.refreshTokens.Issue(c.Context(), account.ID, account.Role, s.refreshTTL)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeBadRequest, "refresh token issue failed")
	}

	return ok(c, fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_at":    expiresAt.Unix(),
		"role":          account.Role,
		"user_info":     account.Profile(),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return fail(c, fiber.StatusBadRequest, codeBadRequest, "refresh token required")
	}

	accountID, _, err := s.refreshTokens.Validate(c.Context(), req.RefreshToken)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid refresh token")
	}
	account, err := s.accounts.GetByID(c.Context(), accountID)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "account not found")
	}

	// Rotate: the redeemed token is revoked and a fresh one issued.
	if err := s.refreshTokens.Revoke(c.Context(), req.RefreshToken); err != nil {
		s.logger.Warn("refresh token revoke failed", zap.Error(err))
	}
	accessToken, expiresAt, err := s.tokens.Generate(account)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeBadRequest, "token generation failed")
	}
	refreshToken, err := s.refreshTokens.Issue(c.Context(), account.ID, account.Role, s.refreshTTL)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, codeBadRequest, "refresh token issue failed")
	}

	return ok(c, fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_at":    expiresAt.Unix(),
	})
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid authorization header")
	}

	claims, err := s.tokens.Parse(parts[1])
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fail(c, fiber.StatusUnauthorized, codeExpiredToken, "token expired")
		}
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "invalid token")
	}

	account, err := s.accounts.GetByID(c.Context(), claims.AccountID)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "account not found")
	}
	c.Locals(accountKey, account)
	return c.Next()
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	account, ok := accountFromContext(c)
	if !ok || account.Role != domain.RoleAdmin {
		return fail(c, fiber.StatusForbidden, codeForbidden, "administrator required")
	}
	return c.Next()
}

func accountFromContext(c *fiber.Ctx) (*Account, bool) {
	val := c.Locals(accountKey)
	if val == nil {
		return nil, false
	}
	account, ok := val.(*Account)
	return account, ok
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	account, found := accountFromContext(c)
	if !found {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "not authenticated")
	}
	return ok(c, account.Profile())
}

type profileUpdateRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarRef   *string `json:"avatar_ref"`
	Phone       *string `json:"phone"`
	Bio         *string `json:"bio"`
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	account, found := accountFromContext(c)
	if !found {
		return fail(c, fiber.StatusUnauthorized, codeUnauthorized, "not authenticated")
	}

	var req profileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, codeBadRequest, "invalid payload")
	}
	if req.DisplayName != nil {
		account.DisplayName = *req.DisplayName
	}
	if req.AvatarRef != nil {
		account.AvatarRef = *req.AvatarRef
	}
	if req.Phone != nil {
		account.Phone = *req.Phone
	}
	if req.Bio != nil {
		account.Bio = *req.Bio
	}

	if err := s.accounts.UpdateProfile(c.Context(), account); err != nil {
		return fail(c, fiber.StatusNotFound, codeNotFound, "account not found")
	}
	return ok(c, account.Profile())
}

func (s *Server) listPets(includeAll bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		if page < 1 {
			page = 1
		}
		pageSize := c.QueryInt("page_size", 10)
		if pageSize < 1 || pageSize > 100 {
			pageSize = 10
		}

		var items []domain.Pet
		for _, pet := range s.pets {
			if includeAll || pet.Status == domain.PetStatusAvailable {
				items = append(items, pet)
			}
		}

		total := len(items)
		start := (page - 1) * pageSize
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}

		return ok(c, domain.PetPage{
			Items:    items[start:end],
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

// SeedAccounts registers the default development accounts.
func SeedAccounts(ctx context.Context, accounts AccountRepository, bcryptCost int, logger *zap.Logger) error {
	seeds := []struct {
		account  Account
		password string
	}{
		{
			account: Account{
				Email:       "adopter@example.com",
				DisplayName: "Avery Adopter",
				Role:        domain.RoleUser,
			},
			password: "Passw0rd!",
		},
		{
			account: Account{
				Email:          "shelter@example.com",
				DisplayName:    "Sam Shelter",
				Role:           domain.RoleAdmin,
				AdminShelterID: 1,
			},
			password: "Passw0rd!",
		},
	}

	for _, seed := range seeds {
		if _, err := accounts.GetByEmail(ctx, seed.account.Email); err == nil {
			continue
		}
		hash, err := HashPassword(seed.password, bcryptCost)
		if err != nil {
			return err
		}
		account := seed.account
		account.PasswordHash = hash
		if err := accounts.Create(ctx, &account); err != nil {
			return err
		}
		logger.Info("seeded account", zap.String("email", account.Email), zap.String("role", string(account.Role)))
	}
	return nil
}

func seedPets() []domain.Pet {
	now := time.Now()
	return []domain.Pet{
		{ID: 1, Name: "Biscuit", Species: "dog", Breed: "beagle", AgeMonths: 18, ShelterID: 1, Status: domain.PetStatusAvailable, CreatedAt: now},
		{ID: 2, Name: "Mochi", Species: "cat", Breed: "tabby", AgeMonths: 7, ShelterID: 1, Status: domain.PetStatusAvailable, CreatedAt: now},
		{ID: 3, Name: "Pepper", Species: "dog", Breed: "mixed", AgeMonths: 36, ShelterID: 2, Status: domain.PetStatusFostered, CreatedAt: now},
		{ID: 4, Name: "Clover", Species: "rabbit", AgeMonths: 12, ShelterID: 2, Status: domain.PetStatusAvailable, CreatedAt: now},
		{ID: 5, Name: "Ziggy", Species: "cat", Breed: "siamese", AgeMonths: 48, ShelterID: 1, Status: domain.PetStatusAdopted, CreatedAt: now},
	}
}
