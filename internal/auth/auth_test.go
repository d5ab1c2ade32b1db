package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	role := domain.StaffRoleModerator

	token, expiresAt, err := tm.GenerateToken(123456789012345678, domain.SubjectTypeStaff, &role)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	id, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), id)
	assert.Equal(t, domain.SubjectTypeStaff, claims.SubjectType)
	require.NotNil(t, claims.Role)
	assert.Equal(t, role, *claims.Role)
}

func TestTokenManager_RejectsForeignAndExpiredTokens(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	other := NewTokenManager("other-secret", 5)

	token, _, err := other.GenerateToken(1, domain.SubjectTypeMember, nil)
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)

	tm.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := tm.GenerateToken(1, domain.SubjectTypeMember, nil)
	require.NoError(t, err)
	_, err = tm.ParseToken(expired)
	assert.Error(t, err)
}

func newAuthApp(tm *TokenManager, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	handlers := append([]fiber.Handler{NewAuthMiddleware(tm).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		actor := principal.Actor()
		return c.JSON(fiber.Map{"id": actor.ID, "staff": actor.Staff})
	})
	app.Get("/", handlers...)
	return app
}

func request(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := newAuthApp(tm)

	assert.Equal(t, http.StatusUnauthorized, request(t, app, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, request(t, app, "garbage").StatusCode)

	member, _, err := tm.GenerateToken(42, domain.SubjectTypeMember, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(t, app, member).StatusCode)

	unknown, _, err := tm.GenerateToken(42, domain.SubjectType("BOT"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, app, unknown).StatusCode)
}

func TestRequireStaffRole(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := newAuthApp(tm, RequireStaffRole(domain.StaffRoleSystem))
	staffOnly := newAuthApp(tm, RequireStaff())

	system := domain.StaffRoleSystem
	moderator := domain.StaffRoleModerator
	systemToken, _, err := tm.GenerateToken(1, domain.SubjectTypeStaff, &system)
	require.NoError(t, err)
	modToken, _, err := tm.GenerateToken(2, domain.SubjectTypeStaff, &moderator)
	require.NoError(t, err)
	memberToken, _, err := tm.GenerateToken(3, domain.SubjectTypeMember, &system)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, request(t, app, systemToken).StatusCode)
	assert.Equal(t, http.StatusForbidden, request(t, app, modToken).StatusCode)
	assert.Equal(t, http.StatusForbidden, request(t, app, memberToken).StatusCode)

	assert.Equal(t, http.StatusOK, request(t, staffOnly, modToken).StatusCode)
	assert.Equal(t, http.StatusForbidden, request(t, staffOnly, memberToken).StatusCode)
}
