package api

import (
	"net/http"

	"github.com/gauntlet-ctf/gauntlet/internal/authutil"
	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ctxKeyClaims  = "auth_claims"
	ctxKeyProfile = "auth_profile"
)

// WithAuth verifies the bearer token and loads (creating on first sight) the
// caller's profile. Team membership is always re-derived from the profile,
// never taken from the request.
func (s *Service) WithAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := authutil.TokenFromHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		claims, err := authutil.ParseToken(token, []byte(s.config.AuthJWTSecret))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		profile, err := s.storage.GetOrCreateProfile(
			c.Request().Context(),
			claims.UserID(),
			claims.Email,
			claims.DisplayName(),
		)
		if err != nil {
			logrus.Errorf("failed to load profile for %s: %v", claims.UserID(), err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}

		c.Set(ctxKeyClaims, claims)
		c.Set(ctxKeyProfile, profile)
		return next(c)
	}
}

// WithAdmin allows only callers whose token email is on the allow-list.
func (s *Service) WithAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := currentClaims(c)
		if claims == nil || !authutil.IsAdmin(claims.Email, s.config.AdminEmailList()) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		return next(c)
	}
}

func currentClaims(c echo.Context) *authutil.Claims {
	claims, _ := c.Get(ctxKeyClaims).(*authutil.Claims)
	return claims
}

func currentProfile(c echo.Context) *models.Profile {
	profile, _ := c.Get(ctxKeyProfile).(*models.Profile)
	return profile
}
