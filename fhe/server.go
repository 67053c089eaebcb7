package fhe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CoprocessorServer exposes a Backend over the coprocessor wire API that
// RemoteCoprocessor speaks. It serves handles, proofs and access-control
// requests; ciphertext key material never leaves the backend.
type CoprocessorServer struct {
	backend Backend
	log     *slog.Logger
}

// NewCoprocessorServer creates a server around backend. A nil log falls
// back to slog.Default().
func NewCoprocessorServer(backend Backend, log *slog.Logger) *CoprocessorServer {
	if log == nil {
		log = slog.Default()
	}
	return &CoprocessorServer{backend: backend, log: log}
}

// RegisterRoutes mounts the coprocessor API on the router.
func (s *CoprocessorServer) RegisterRoutes(r chi.Router) {
	r.Post("/verify-input", s.handleVerifyInput)
	r.Post("/trivial-encrypt", s.handleTrivialEncrypt)
	r.Post("/ge", s.handleBinaryOp(s.backend.Ge))
	r.Post("/lt", s.handleBinaryOp(s.backend.Lt))
	r.Post("/and", s.handleBinaryOp(s.backend.And))
	r.Post("/acl/allow", s.handleAllow)
	r.Post("/acl/make-public", s.handleMakePublic)
	r.Post("/acl/is-allowed", s.handleIsAllowed)
	r.Post("/acl/is-public", s.handleIsPublic)
	r.Post("/decrypt", s.handleDecrypt)
	r.Post("/decrypt/public", s.handleDecryptPublic)
	r.Get("/attestation", s.handleAttestation)
}

func (s *CoprocessorServer) handleVerifyInput(w http.ResponseWriter, r *http.Request) {
	var req verifyInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.VerifyInput(r.Context(), req.Handle, req.Proof, req.Caller); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.log.Debug("input admitted", "handle", req.Handle.String())
	w.WriteHeader(http.StatusOK)
}

func (s *CoprocessorServer) handleTrivialEncrypt(w http.ResponseWriter, r *http.Request) {
	var req trivialEncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	handle, err := s.backend.TrivialEncrypt(r.Context(), req.Value)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, handleResponse{Handle: handle})
}

func (s *CoprocessorServer) handleBinaryOp(op func(context.Context, Handle, Handle) (Handle, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req binaryOpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		handle, err := op(r.Context(), req.A, req.B)
		if err != nil {
			s.writeError(w, errorStatus(err), err)
			return
		}
		s.writeJSON(w, handleResponse{Handle: handle})
	}
}

func (s *CoprocessorServer) handleAllow(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.Allow(r.Context(), req.Handle, req.Grantee); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *CoprocessorServer) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.MakePubliclyDecryptable(r.Context(), req.Handle); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *CoprocessorServer) handleIsAllowed(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	allowed, err := s.backend.IsAllowed(r.Context(), req.Handle, req.Grantee)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, allowedResponse{Allowed: allowed})
}

func (s *CoprocessorServer) handleIsPublic(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	isPublic, err := s.backend.IsPubliclyDecryptable(r.Context(), req.Handle)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, publicResponse{Public: isPublic})
}

func (s *CoprocessorServer) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	plaintext, err := s.backend.Decrypt(r.Context(), req.Handle, req.Requester)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, plaintext)
}

func (s *CoprocessorServer) handleDecryptPublic(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	plaintext, err := s.backend.DecryptPublic(r.Context(), req.Handle)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, plaintext)
}

func (s *CoprocessorServer) handleAttestation(w http.ResponseWriter, r *http.Request) {
	attestation, err := s.backend.Attest(r.Context())
	if err != nil {
		s.log.Error("failed to produce attestation", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, attestationResponse{Attestation: attestation})
}

func (s *CoprocessorServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "err", err)
	}
}

func (s *CoprocessorServer) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(remoteErrorResponse{Error: err.Error()})
}

// errorStatus maps backend sentinels to HTTP statuses. The client rebuilds
// the sentinels from the response body, so the status is advisory.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotAllowed), errors.Is(err, ErrNotPublic):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownHandle), errors.Is(err, ErrInvalidProof), errors.Is(err, ErrTypeMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
