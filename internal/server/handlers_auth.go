package server

import (
	"net/http"

	"github.com/go-chi/render"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// handleSignUp registers an account. Mail delivery is outside this process,
// so the verification token is returned to the caller.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}

	user, verifyToken, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"user":              user,
		"verificationToken": verifyToken,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}

	sess, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}

	if err := s.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSignOut ends the session and, with it, the user's journal
// subscription.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := s.auth.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sessions.Close(user.UID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, userFrom(r.Context()))
}
