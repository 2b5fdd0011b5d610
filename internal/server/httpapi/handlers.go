package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/gorilla/mux"
)

type signUpRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Message string             `json:"message"`
	User    models.UserSummary `json:"user"`
}

type usersResponse struct {
	Message  string               `json:"message"`
	Users    []models.UserSummary `json:"users"`
	AllUsers bool                 `json:"allUsers"`
	Page     int                  `json:"page"`
	Limit    int                  `json:"limit"`
	Total    int                  `json:"total"`
}

type conversationResponse struct {
	Message      string            `json:"message"`
	Conversation []*models.Message `json:"conversation"`
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Message string          `json:"message"`
	Data    *models.Message `json:"data"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body", Error: codeValidation})
		return
	}

	user, err := s.users.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "required parameter missing", Error: codeValidation})
		case errors.Is(err, common.ErrorAlreadyExists):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "User Already Exist With This Email", Error: "already_exists"})
		default:
			s.logger.Error(r.Context(), "sign-up failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	s.logger.Info(r.Context(), "Registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, messageResponse{Message: "User Created"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body", Error: codeValidation})
		return
	}

	user, token, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Required Parameter Missing", Error: codeValidation})
		case errors.Is(err, common.ErrorNotFound):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "User Not Found With This Email", Error: codeNotFound})
		case errors.Is(err, common.ErrorUnauthorized):
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Password did not match", Error: codeInvalidCredential})
		default:
			s.logger.Error(r.Context(), "login failed", "error", err)
			writeInternalError(w)
		}
		return
	}

	s.setCredentialCookie(w, token)
	writeJSON(w, http.StatusOK, userResponse{Message: "User Logged in", User: user.Summary()})
}

// logout clears the cookie. When the request still carries a valid
// credential every live channel of that identity is closed too.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if claims, err := s.verifier.Verify(credentialCookie(r)); err == nil {
		for _, ch := range s.registry.UnbindIdentity(claims.UserID) {
			ch.Close()
		}
	}

	s.clearCredentialCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "User Logout"})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.UserID
	}

	user, err := s.users.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "User not found", Error: codeNotFound})
			return
		}
		s.logger.Error(r.Context(), "profile lookup failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Message: "User Found", User: user.Summary()})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	q := r.URL.Query()

	page, err := s.users.List(r.Context(), claims.UserID, q.Get("user"), atoiOrZero(q.Get("page")), atoiOrZero(q.Get("limit")))
	if err != nil {
		s.logger.Error(r.Context(), "user listing failed", "error", err)
		writeInternalError(w)
		return
	}

	summaries := make([]models.UserSummary, 0, len(page.Users))
	for _, u := range page.Users {
		summaries = append(summaries, u.Summary())
	}

	writeJSON(w, http.StatusOK, usersResponse{
		Message:  "users found",
		Users:    summaries,
		AllUsers: page.AllUsers,
		Page:     page.Page,
		Limit:    page.Limit,
		Total:    page.Total,
	})
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	peerID := mux.Vars(r)["peerId"]

	msgs, err := s.chat.History(r.Context(), claims.UserID, peerID)
	if err != nil {
		s.logger.Error(r.Context(), "history failed", "peer", peerID, "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{Message: "Message Found", Conversation: msgs})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	peerID := mux.Vars(r)["peerId"]

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body", Error: codeValidation})
		return
	}

	origin := r.Header.Get(common.ConnectionIDHeaderName)
	msg, err := s.chat.Send(r.Context(), claims, peerID, req.Message, origin)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Message text is required", Error: codeEmptyMessage})
		case errors.Is(err, common.ErrorValidation):
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Recipient is required", Error: codeValidation})
		case errors.Is(err, common.ErrorNotFound):
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "User not found", Error: codeNotFound})
		default:
			s.logger.Error(r.Context(), "send failed", "peer", peerID, "error", err)
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Internal Server Error", Error: errorCode(err)})
		}
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Message: "Message Sent", Data: msg})
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
