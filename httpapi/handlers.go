package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/principal"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 16 << 10

type principalView struct {
	ID          string  `json:"id"`
	Role        string  `json:"role"`
	TenantID    *string `json:"tenantId"`
	Username    string  `json:"username,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	Language    string  `json:"language,omitempty"`
}

func viewOf(p principal.Principal) principalView {
	return principalView{
		ID:       p.ID,
		Role:     string(p.Role),
		TenantID: principal.CloneTenant(p.TenantID),
	}
}

func profileOf(rec principal.Record) principalView {
	v := viewOf(rec.View())
	v.Username = rec.Username
	v.DisplayName = rec.DisplayName
	v.Language = rec.Language
	return v
}

type handshakeRequest struct {
	InitData   string `json:"initData"`
	TenantHint string `json:"tenantHint"`
}

type sessionResponse struct {
	Principal principalView `json:"principal"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Created   bool          `json:"created,omitempty"`
}

type logoutRequest struct {
	AllDevices bool `json:"allDevices"`
}

type logoutResponse struct {
	ClearStoredToken bool `json:"clearStoredToken"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type magicResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type stampResponse struct {
	Stamp string `json:"stamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, goSession.ErrHandshakeInvalid)
		return
	}

	sess, err := s.engine.Handshake(r.Context(), req.InitData, req.TenantHint)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	http.SetCookie(w, s.cookies.Session(sess.Token, sess.MaxAge()))
	status := http.StatusOK
	if sess.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sessionResponse{
		Principal: viewOf(sess.Principal),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Created:   sess.Created,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, goSession.ErrNoCredential)
		return
	}

	rec, err := s.engine.Profile(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, goSession.ErrPrincipalNotFound) {
			err = goSession.ErrSessionRevoked
		}
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]principalView{"principal": profileOf(rec)})
}

// handleLogout always clears the cookie, even for a malformed body. An empty
// body, chunked or not, is a plain logout. With allDevices it first rotates
// the caller's stamp; a caller without a valid session still gets the cookie
// cleared.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		http.SetCookie(w, s.cookies.Clear())
		middleware.WriteError(w, goSession.ErrTokenMalformed)
		return
	}

	if req.AllDevices {
		p, err := s.resolver.Resolve(r)
		if err == nil {
			if _, err := s.engine.Rotate(r.Context(), p.ID); err != nil && goSession.KindOf(err) == goSession.KindTransient {
				middleware.WriteError(w, err)
				return
			}
		}
	}

	http.SetCookie(w, s.cookies.Clear())
	writeJSON(w, http.StatusOK, logoutResponse{ClearStoredToken: true})
}

// handleMagicRedeem never reveals why a token was rejected; every failure
// redirects with the same error code.
func (s *Server) handleMagicRedeem(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	sess, err := s.engine.RedeemMagic(r.Context(), token)
	if err != nil {
		_, code := middleware.Status(err)
		http.Redirect(w, r, withQuery(s.redirect, "error", code), http.StatusSeeOther)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.SetCookie(w, s.cookies.Session(sess.Token, sess.MaxAge()))
	http.Redirect(w, r, s.redirect, http.StatusSeeOther)
}

func (s *Server) handleIssueMagic(w http.ResponseWriter, r *http.Request) {
	mt, err := s.engine.IssueMagic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, magicResponse{Token: mt.Token, ExpiresAt: mt.ExpiresAt})
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	next, err := s.engine.Rotate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stampResponse{Stamp: next})
}

func (s *Server) handleCurrentStamp(w http.ResponseWriter, r *http.Request) {
	current, err := s.engine.CurrentStamp(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stampResponse{Stamp: current})
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInternalError(w, goSession.ErrRoleInvalid)
		return
	}

	rec, err := s.engine.ChangeRole(r.Context(), chi.URLParam(r, "id"), principal.Role(req.Role))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]principalView{"principal": profileOf(rec)})
}

func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeInternalError is used on trusted routes, where the caller is an
// operator and may see precise status codes.
func writeInternalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goSession.ErrPrincipalNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "principal_not_found"})
	case errors.Is(err, goSession.ErrSessionRevoked):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "principal_deleted"})
	case errors.Is(err, goSession.ErrRoleInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role_invalid"})
	default:
		middleware.WriteError(w, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
