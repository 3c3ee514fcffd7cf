package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/service/auth"
)

type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type sessionResponse struct {
	User   domain.Profile `json:"user"`
	Tokens tokensResponse `json:"tokens"`
}

func newSessionResponse(profile domain.Profile, tokens auth.TokenPair) sessionResponse {
	return sessionResponse{
		User: profile,
		Tokens: tokensResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			ExpiresIn:    int64(tokens.ExpiresIn.Seconds()),
		},
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, profile, tokens, err := r.auth.Signup(req.Context(), auth.SignupInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		Role:     payload.Role,
	})
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(profile, tokens))
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, profile, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(profile, tokens))
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	identity, tokens, err := r.auth.Refresh(req.Context(), payload.RefreshToken)
	if err != nil {
		r.logger.Warn("refresh rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	profile, err := r.auth.Profile(req.Context(), identity)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(profile, tokens))
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile lookup", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	identity := &domain.Identity{ID: info.UserID, Role: info.Role}
	profile, err := r.auth.Profile(req.Context(), identity)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}
