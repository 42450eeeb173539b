// Package authmod is the built-in auth module: it exposes login, refresh,
// logout, and password change as services under the /admin/auth/* endpoint
// convention. Credential validation itself runs in the gateway middleware;
// this module owns only the credential-issuing surface.
package authmod

import (
	"context"
	"fmt"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/services"
)

// Service names.
const (
	ServiceLogin          = "auth.login"
	ServiceRefresh        = "auth.refresh"
	ServiceLogout         = "auth.logout"
	ServiceChangePassword = "auth.change_password"
)

// Module is the auth module. REQUIRED.
type Module struct {
	plugin.Base
	authn *auth.Authenticator
	host  plugin.Host
}

// New creates the auth module over the authenticator.
func New(authn *auth.Authenticator) *Module {
	return &Module{authn: authn}
}

func (m *Module) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "auth",
		Version:     "1.0.0",
		Description: "login, token refresh, logout, password management",
	}
}

func (m *Module) OnLoad(ctx context.Context, host plugin.Host) error {
	m.host = host

	handlers := map[string]services.Handler{
		ServiceLogin:          m.login,
		ServiceRefresh:        m.refresh,
		ServiceLogout:         m.logout,
		ServiceChangePassword: m.changePassword,
	}
	for name, h := range handlers {
		if err := host.Services().Register(name, h); err != nil {
			return err
		}
	}

	endpoints := []httpreg.Endpoint{
		{Method: "POST", Path: "/admin/auth/login", Service: ServiceLogin},
		{Method: "POST", Path: "/admin/auth/refresh", Service: ServiceRefresh},
		{Method: "POST", Path: "/admin/auth/logout", Service: ServiceLogout},
		{Method: "POST", Path: "/admin/auth/password", Service: ServiceChangePassword},
	}
	for _, ep := range endpoints {
		if err := host.HTTP().Register(ep); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) OnUnload(ctx context.Context) error {
	reg := m.host.Services()
	for _, name := range []string{ServiceLogin, ServiceRefresh, ServiceLogout, ServiceChangePassword} {
		reg.Unregister(name)
	}
	m.host.HTTP().Clear("auth")
	m.host = nil
	return nil
}

// bodyOf extracts the JSON body argument: the last positional value when it
// is an object.
func bodyOf(args services.Args) map[string]any {
	if len(args.Positional) == 0 {
		return nil
	}
	body, _ := args.Positional[len(args.Positional)-1].(map[string]any)
	return body
}

func stringKey(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// login exchanges username/password for a session id, an access token, and
// a refresh token.
func (m *Module) login(ctx context.Context, args services.Args) (any, error) {
	body := bodyOf(args)
	username := stringKey(body, "username")
	password := stringKey(body, "password")
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", errs.ErrInvalidInput)
	}

	sessionID, accessToken, refreshToken, err := m.authn.Login(ctx, username, password, "", "")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id":    sessionID,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	}, nil
}

// refresh rotates a refresh token and mints a new access token.
func (m *Module) refresh(ctx context.Context, args services.Args) (any, error) {
	token := stringKey(bodyOf(args), "refresh_token")
	if token == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", errs.ErrInvalidInput)
	}

	accessToken, newRefresh, err := m.authn.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"access_token":  accessToken,
		"refresh_token": newRefresh,
		"token_type":    "Bearer",
	}, nil
}

// logout revokes the caller's session, or an explicit session_id from the
// body.
func (m *Module) logout(ctx context.Context, args services.Args) (any, error) {
	sessionID := stringKey(bodyOf(args), "session_id")
	if sessionID == "" {
		if rc := auth.RequestContextFrom(ctx); rc != nil {
			sessionID = rc.SessionID
		}
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: no session to log out", errs.ErrUnauthenticated)
	}

	if err := m.authn.Logout(ctx, sessionID); err != nil {
		return nil, err
	}
	return map[string]any{"logged_out": true}, nil
}

// changePassword requires an authenticated caller with a linked user.
func (m *Module) changePassword(ctx context.Context, args services.Args) (any, error) {
	rc := auth.RequestContextFrom(ctx)
	if rc == nil || rc.UserID == "" {
		return nil, fmt.Errorf("%w: password change requires an authenticated user", errs.ErrUnauthenticated)
	}

	body := bodyOf(args)
	oldPassword := stringKey(body, "old_password")
	newPassword := stringKey(body, "new_password")
	if oldPassword == "" || newPassword == "" {
		return nil, fmt.Errorf("%w: old_password and new_password are required", errs.ErrInvalidInput)
	}

	if err := m.authn.ChangePassword(ctx, rc.UserID, oldPassword, newPassword); err != nil {
		return nil, err
	}
	return map[string]any{"changed": true}, nil
}
