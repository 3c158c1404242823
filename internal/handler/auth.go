package handler

import (
	"context"
	"errors"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/ierr"
)

type AuthRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	Success bool      `json:"success"`
	UserId  string    `json:"userId,omitempty"`
	Role    auth.Role `json:"role,omitempty"`
}

type AuthHandlerInterface interface {
	Handle(ctx context.Context, req AuthRequest) (AuthResponse, error)
}

type AuthHandler struct {
	authenticator *auth.Authenticator
	dispatcher    Dispatcher
}

func NewAuthHandler(authenticator *auth.Authenticator, dispatcher Dispatcher) *AuthHandler {
	return &AuthHandler{
		authenticator,
		dispatcher,
	}
}

// Handle authenticates the session and registers it with the active delivery
// strategy. Connections receive nothing before this succeeds.
func (h *AuthHandler) Handle(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	authentication, err := h.authenticator.AuthenticateJWT(req.Token)
	if err != nil {
		return AuthResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return AuthResponse{}, errors.New("connection not found in context")
	}

	err = connection.SetAuthentication(*authentication)
	if err != nil {
		return AuthResponse{}, ierr.New(ierr.ErrorCodeFailedPrecondition, err)
	}

	err = h.dispatcher.OnConnect(ctx, connection)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Success: true,
		UserId:  authentication.Subject,
		Role:    authentication.Role,
	}, nil
}
