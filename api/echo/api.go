//nolint:varnamelen
package echo

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	serrors "github.com/veggydawson/frappe/errors"
	"github.com/veggydawson/frappe/session"
)

const sidCookieName = "sid"

// sessionContextKey is the echo context key the middleware stores the
// resolved session under.
const sessionContextKey = "frappe.session"

// SessionAPI exposes the session store over HTTP: boot-info retrieval, cache
// reset, and the middleware that resolves the sid cookie into a session.
type SessionAPI struct {
	deps session.Deps
	boot *session.BootService
	inv  *session.Invalidator
}

// NewSessionAPI initializes the session API.
func NewSessionAPI(deps session.Deps, boot *session.BootService, inv *session.Invalidator) *SessionAPI {
	return &SessionAPI{
		deps: deps,
		boot: boot,
		inv:  inv,
	}
}

// RegisterRoutes registers the session routes.
func (a *SessionAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", a.SessionMiddleware())
	g.GET("/bootinfo", a.BootInfoHandler)
	g.POST("/clear", a.ClearHandler)
	g.POST("/login", a.LoginHandler)
	g.POST("/logout", a.LogoutHandler)
	g.POST("/logout_all", a.LogoutAllHandler)
	g.POST("/sessions/clear_all", a.ClearAllSessionsHandler)
}

// SessionMiddleware resolves the sid cookie (or form field) into a session
// handle before the request runs, and renews the session afterwards. An
// expired sid degrades to the guest session and clears the client cookie.
func (a *SessionAPI) SessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := c.FormValue(sidCookieName)
			if sid == "" {
				if cookie, err := c.Cookie(sidCookieName); err == nil {
					sid = cookie.Value
				}
			}

			deps := a.deps
			deps.Lang = requestLang(c)
			sess, err := session.Resume(c.Request().Context(), deps, sid, c.RealIP())
			if err != nil {
				log.Error().Err(err).Str("sid", sid).Msg("Session resolution failed")
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"error": "session store unavailable",
				})
			}

			if sess.Expired() {
				clearSIDCookie(c)
			}
			c.Set(sessionContextKey, sess)

			if err := next(c); err != nil {
				return err
			}

			// renew at request end, except on logout
			if c.QueryParam("cmd") != "logout" && c.Path() != "/api/logout" {
				if _, uerr := sess.Update(c.Request().Context(), false); uerr != nil {
					log.Warn().Err(uerr).Str("sid", sess.SID()).Msg("Session renewal failed")
				}
			}
			return nil
		}
	}
}

// SessionFromContext returns the session resolved by the middleware.
func SessionFromContext(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionContextKey).(*session.Session)
	return sess
}

// BootInfoHandler serves the cached per-user bootstrap payload.
func (a *SessionAPI) BootInfoHandler(c echo.Context) error {
	sess := SessionFromContext(c)

	info, err := a.boot.Get(c.Request().Context(), sess)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "could not assemble boot info",
		})
	}

	resp := map[string]any{"bootinfo": info}
	if sess.Expired() {
		resp["session_expired"] = 1
	}
	return c.JSON(http.StatusOK, resp)
}

// ClearHandler is the user-triggered cache reset. An optional user form
// value clears another user's namespace.
func (a *SessionAPI) ClearHandler(c echo.Context) error {
	sess := SessionFromContext(c)

	msg, err := a.boot.Clear(c.Request().Context(), sess, c.FormValue("user"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "cache clear failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": msg})
}

// LoginHandler starts a session for an identity already verified upstream
// (an auth proxy sets X-Authenticated-User). Credential checking is not this
// service's business.
func (a *SessionAPI) LoginHandler(c echo.Context) error {
	user := c.Request().Header.Get("X-Authenticated-User")
	if user == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "missing verified identity",
		})
	}

	deps := a.deps
	deps.Lang = requestLang(c)
	sess, err := session.Start(c.Request().Context(), deps, user, c.RealIP(), c.FormValue("full_name"))
	if err != nil {
		log.Error().Err(err).Str("user", user).Msg("Session start failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "could not start session",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     sidCookieName,
		Value:    sess.SID(),
		Path:     "/",
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, map[string]string{"sid": sess.SID()})
}

// LogoutHandler deletes the caller's session and clears the sid cookie.
func (a *SessionAPI) LogoutHandler(c echo.Context) error {
	sess := SessionFromContext(c)

	if !sess.IsGuest() {
		if err := sess.Delete(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "logout failed",
			})
		}
	}
	clearSIDCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// LogoutAllHandler deletes every other session of the caller, keeping the
// current one alive.
func (a *SessionAPI) LogoutAllHandler(c echo.Context) error {
	sess := SessionFromContext(c)
	if sess.IsGuest() {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "not logged in",
		})
	}

	if err := a.inv.ClearSessions(c.Request().Context(), sess.User(), sess.SID()); err != nil {
		log.Error().Err(err).Str("user", sess.User()).Msg("Clearing user sessions failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "could not clear sessions",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out of all other sessions"})
}

// ClearAllSessionsHandler logs out every user system-wide. Administrator only.
func (a *SessionAPI) ClearAllSessionsHandler(c echo.Context) error {
	sess := SessionFromContext(c)

	if err := a.inv.ClearAllSessions(c.Request().Context(), sess.User()); err != nil {
		if serrors.HasCode(err, serrors.AccessDenied) {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "access denied",
			})
		}
		log.Error().Err(err).Msg("Clearing all sessions failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "could not clear sessions",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "all sessions cleared"})
}

// requestLang picks the language for this request: an explicit lang form
// value wins over the first Accept-Language tag.
func requestLang(c echo.Context) string {
	if lang := c.FormValue("lang"); lang != "" {
		return lang
	}
	header := c.Request().Header.Get("Accept-Language")
	if header == "" {
		return ""
	}
	lang := strings.SplitN(header, ",", 2)[0]
	return strings.TrimSpace(strings.SplitN(lang, ";", 2)[0])
}

func clearSIDCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}
