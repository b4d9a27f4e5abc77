// Package sandbox is a development stand-in for the remote banking API. It
// serves the same surface the client consumes, which makes the full flow
// (login, directory, transfer, deposit, feed) runnable without the production
// backend.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bankpay/internal/config"
	"bankpay/internal/domain/models"
	"bankpay/internal/lib/jwt"
)

const tokenTTL = 24 * time.Hour

// Server is the sandbox HTTP API.
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	storage   Storage
	jwtSecret []byte

	idemMu sync.Mutex
	idem   map[string]idemOutcome
}

type idemOutcome struct {
	status int
	body   []byte
}

func New(cfg *config.Config, logger *slog.Logger, storage Storage, jwtSecret []byte) *Server {
	return &Server{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr: cfg.Sandbox.Host + ":" + strconv.Itoa(cfg.Sandbox.Port),
		},
		storage:   storage,
		jwtSecret: jwtSecret,
		idem:      make(map[string]idemOutcome),
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting sandbox server", slog.String("addr", s.server.Addr))

	s.server.Handler = s.Router()

	return s.server.ListenAndServe()
}

func (s *Server) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start sandbox server: " + err.Error())
	}
}

func (s *Server) Stop(ctx context.Context) error {
	defer s.logger.Info("Sandbox server stopped")
	return s.server.Shutdown(ctx)
}

// Router builds the sandbox route table. Exposed so tests can drive the
// handlers through httptest.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/auth/register", s.registerHandler()).Methods("POST")
	router.HandleFunc("/api/auth/login", s.loginHandler()).Methods("POST")
	router.HandleFunc("/api/auth/me", s.authenticate(s.meHandler())).Methods("GET")
	router.HandleFunc("/api/users", s.authenticate(s.usersHandler())).Methods("GET")
	router.HandleFunc("/api/transactions/transfer", s.authenticate(s.idempotent(s.transferHandler()))).Methods("POST")
	router.HandleFunc("/api/transactions/deposit", s.authenticate(s.idempotent(s.depositHandler()))).Methods("POST")
	router.HandleFunc("/api/transactions/my", s.authenticate(s.myTransactionsHandler())).Methods("GET")
	return router
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messageResponse{Message: msg})
}

func (s *Server) registerHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeMessage(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		if existing, _ := s.storage.GetUserByUsername(r.Context(), req.Username); existing != nil {
			writeMessage(w, http.StatusConflict, "Username already taken")
			return
		}

		passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("Failed to hash password", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		user, err := s.storage.SaveUser(r.Context(), req.Username, passHash)
		if err != nil {
			s.logger.Error("Failed to save user", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		s.logger.Info("Registered user", slog.String("username", user.Username))

		token, err := jwt.NewToken(user, string(s.jwtSecret), tokenTTL)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Registration failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: token})
	}
}

func (s *Server) loginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, hash, err := s.storage.GetCredentials(r.Context(), strings.TrimSpace(req.Username))
		if err != nil || user == nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := jwt.NewToken(user, string(s.jwtSecret), tokenTTL)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Login failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: token})
	}
}

type ctxKey string

const ctxKeyUserID ctxKey = "uid"

func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			writeMessage(w, http.StatusUnauthorized, "Missing token")
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeMessage(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		claims, err := jwt.ParseToken(parts[1], string(s.jwtSecret))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		uid, _ := claims["uid"].(string)
		if uid == "" {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, uid)))
	}
}

// idempotent replays the stored outcome for a repeated Idempotency-Key, so a
// duplicated submit moves money once.
func (s *Server) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}

		s.idemMu.Lock()
		prior, seen := s.idem[key]
		s.idemMu.Unlock()
		if seen {
			s.logger.Info("Replaying idempotent response", slog.String("key", key))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(prior.status)
			_, _ = w.Write(prior.body)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.idemMu.Lock()
		s.idem[key] = idemOutcome{status: rec.status, body: rec.body}
		s.idemMu.Unlock()
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (s *Server) meHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.Context().Value(ctxKeyUserID).(string)

		user, err := s.storage.GetUser(r.Context(), uid)
		if err != nil || user == nil {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}
}

func (s *Server) usersHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.storage.ListUsers(r.Context())
		if err != nil {
			s.logger.Error("Failed to list users", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Failed to list users")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(users)
	}
}

type transferRequest struct {
	ToUserID string          `json:"toUserId"`
	Amount   decimal.Decimal `json:"amount"`
}

func (s *Server) transferHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.Context().Value(ctxKeyUserID).(string)

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !req.Amount.IsPositive() {
			writeMessage(w, http.StatusBadRequest, "Amount must be positive")
			return
		}
		if req.ToUserID == uid {
			writeMessage(w, http.StatusBadRequest, "Cannot send money to yourself")
			return
		}

		sender, err := s.storage.GetUser(r.Context(), uid)
		if err != nil || sender == nil {
			writeMessage(w, http.StatusNotFound, "Sender not found")
			return
		}
		receiver, err := s.storage.GetUser(r.Context(), req.ToUserID)
		if err != nil || receiver == nil {
			writeMessage(w, http.StatusNotFound, "Recipient not found")
			return
		}
		if sender.Balance.LessThan(req.Amount) {
			writeMessage(w, http.StatusBadRequest, "Insufficient funds")
			return
		}

		if err := s.storage.Transfer(r.Context(), sender.ID, receiver.ID, req.Amount); err != nil {
			s.logger.Error("Transfer failed", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Transfer failed")
			return
		}

		s.logger.Info("Transfer",
			slog.String("from", sender.Username),
			slog.String("to", receiver.Username),
			slog.String("amount", req.Amount.String()),
		)
		writeMessage(w, http.StatusOK, "Money sent successfully")
	}
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) depositHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.Context().Value(ctxKeyUserID).(string)

		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !req.Amount.IsPositive() {
			writeMessage(w, http.StatusBadRequest, "Amount must be positive")
			return
		}

		if err := s.storage.Deposit(r.Context(), uid, req.Amount); err != nil {
			s.logger.Error("Deposit failed", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Deposit failed")
			return
		}

		s.logger.Info("Deposit", slog.String("user", uid), slog.String("amount", req.Amount.String()))
		writeMessage(w, http.StatusOK, "Money deposited successfully")
	}
}

func (s *Server) myTransactionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.Context().Value(ctxKeyUserID).(string)

		txs, err := s.storage.ListTransactions(r.Context(), uid)
		if err != nil {
			s.logger.Error("Failed to list transactions", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Failed to list transactions")
			return
		}
		if txs == nil {
			txs = []models.Transaction{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(txs)
	}
}
