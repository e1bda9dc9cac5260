package gamed

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"savingsgame/crypto"
	"savingsgame/services/gamed/archive"
	"savingsgame/services/gamed/middleware"
)

const maxBodyBytes = 64 << 10

// ServerConfig wires the HTTP layer.
type ServerConfig struct {
	Auth       middleware.AuthConfig
	AdminScope string
	RateLimit  middleware.RateLimit
	Logger     *slog.Logger
}

// Server exposes the game over HTTP.
type Server struct {
	svc     *Service
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	logger  *slog.Logger
	handler http.Handler
}

// NewServer builds the router.
func NewServer(svc *Service, cfg ServerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := middleware.NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	adminScope := cfg.AdminScope
	if adminScope == "" {
		adminScope = "admin"
	}
	s := &Server{
		svc:     svc,
		auth:    auth,
		limiter: middleware.NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.observe("game")).Get("/game", s.handleGame)
		v1.With(s.observe("player")).Get("/players/{address}", s.handlePlayer)
		v1.With(s.observe("events")).Get("/events", s.handleEvents)
		v1.Get("/events/stream", s.handleEventStream)

		v1.Group(func(player chi.Router) {
			player.Use(auth.Middleware())
			player.With(s.observe("join")).Post("/join", s.handleJoin)
			player.With(s.observe("join_whitelisted")).Post("/join/whitelisted", s.handleJoinWhitelisted)
			player.With(s.observe("deposit")).Post("/deposit", s.handleDeposit)
			player.With(s.observe("early_exit")).Post("/early-exit", s.handleEarlyExit)
			player.With(s.observe("withdraw")).Post("/withdraw", s.handleWithdraw)
			player.With(s.observe("redeem")).Post("/redeem", s.handleRedeem)
			player.With(s.observe("dev_mint")).Post("/dev/mint", s.handleMint)
		})

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.Middleware(adminScope))
			admin.With(s.observe("admin_withdraw")).Post("/withdraw", s.handleAdminWithdraw)
			admin.With(s.observe("admin_pause")).Post("/pause", s.handlePause(true))
			admin.With(s.observe("admin_unpause")).Post("/unpause", s.handlePause(false))
			admin.With(s.observe("admin_audit")).Get("/audit", s.handleAudit)
		})
	})

	s.handler = otelhttp.NewHandler(r, "gamed",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) observe(route string) func(http.Handler) http.Handler {
	observe := middleware.Observe(route, s.logger)
	limit := s.limiter.Middleware(route)
	return func(next http.Handler) http.Handler {
		return observe(limit(next))
	}
}

type amountRequest struct {
	Amount string `json:"amount,omitempty"`
}

type whitelistJoinRequest struct {
	Index  uint64   `json:"index"`
	Proof  []string `json:"proof"`
	Amount string   `json:"amount,omitempty"`
}

type mintRequest struct {
	Address string `json:"address,omitempty"`
	Amount  string `json:"amount"`
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount reads a base-10 amount in base units. Empty means "use the
// committed payment".
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %q must be a positive integer", errBadRequest, raw)
	}
	return amount, nil
}

func parseProof(raw []string) ([]common.Hash, error) {
	proof := make([]common.Hash, 0, len(raw))
	for _, node := range raw {
		trimmed := strings.TrimSpace(node)
		if !strings.HasPrefix(trimmed, "0x") {
			trimmed = "0x" + trimmed
		}
		decoded, err := hexutil.Decode(trimmed)
		if err != nil || len(decoded) != common.HashLength {
			return nil, fmt.Errorf("%w: proof node %q is not a 32-byte hex string", errBadRequest, node)
		}
		proof = append(proof, common.BytesToHash(decoded))
	}
	return proof, nil
}

func caller(r *http.Request) [20]byte {
	addr, _ := middleware.Caller(r.Context())
	return addr.Array()
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "join", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, "join", err)
		return
	}
	if err := s.svc.Join(r.Context(), caller(r), amount); err != nil {
		s.writeError(w, r, "join", err)
		return
	}
	s.writePlayer(w, r, "join", http.StatusCreated, caller(r))
}

func (s *Server) handleJoinWhitelisted(w http.ResponseWriter, r *http.Request) {
	var req whitelistJoinRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "join_whitelisted", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, "join_whitelisted", err)
		return
	}
	proof, err := parseProof(req.Proof)
	if err != nil {
		s.writeError(w, r, "join_whitelisted", err)
		return
	}
	if err := s.svc.JoinWhitelisted(r.Context(), caller(r), req.Index, proof, amount); err != nil {
		s.writeError(w, r, "join_whitelisted", err)
		return
	}
	s.writePlayer(w, r, "join_whitelisted", http.StatusCreated, caller(r))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	if err := s.svc.Deposit(r.Context(), caller(r), amount); err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	s.writePlayer(w, r, "deposit", http.StatusOK, caller(r))
}

func (s *Server) handleEarlyExit(w http.ResponseWriter, r *http.Request) {
	payout, err := s.svc.EarlyExit(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, "early_exit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout": formatAmount(payout)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Withdraw(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementView(out))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Redeem(r.Context()); err != nil {
		s.writeError(w, r, "redeem", err)
		return
	}
	s.handleGame(w, r)
}

func (s *Server) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.AdminWithdraw(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, "admin_withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, adminPayoutView{
		InterestPortion: formatAmount(out.InterestPortion),
		AdminFee:        formatAmount(out.AdminFee),
		Total:           out.Total().String(),
		RewardAmount:    formatAmount(out.RewardAmount),
		IncentiveAmount: formatAmount(out.IncentiveAmount),
	})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	route := "admin_unpause"
	if paused {
		route = "admin_pause"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.SetPaused(r.Context(), caller(r), paused); err != nil {
			s.writeError(w, r, route, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "dev_mint", err)
		return
	}
	target := caller(r)
	if strings.TrimSpace(req.Address) != "" {
		addr, err := crypto.DecodeAddress(req.Address)
		if err != nil {
			s.writeError(w, r, "dev_mint", fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		target = addr.Array()
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, "dev_mint", err)
		return
	}
	balance, err := s.svc.Mint(target, amount)
	if err != nil {
		s.writeError(w, r, "dev_mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": crypto.AddressFromArray(target).String(),
		"balance": balance.String(),
	})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, "game", err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(snap))
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, "player", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.writePlayer(w, r, "player", http.StatusOK, addr.Array())
}

func (s *Server) writePlayer(w http.ResponseWriter, r *http.Request, route string, status int, addr [20]byte) {
	view, err := s.svc.Player(addr)
	if err != nil {
		s.writeError(w, r, route, err)
		return
	}
	writeJSON(w, status, newPlayerView(view))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 100
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, "events", fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = parsed
	}
	if !s.svc.HasArchive() {
		writeJSON(w, http.StatusOK, map[string]any{"events": s.svc.Events(limit)})
		return
	}

	filter := archive.Filter{Type: query.Get("type"), Limit: limit}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, "events", fmt.Errorf("%w: after must be a record id", errBadRequest))
			return
		}
		filter.AfterID = after
	}
	if raw := query.Get("player"); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			s.writeError(w, r, "events", fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		filter.Player = addr.String()
	}
	records, err := s.svc.History(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, "events", err)
		return
	}
	out := make([]archivedEventView, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			s.writeError(w, r, "events", err)
			return
		}
		out = append(out, archivedEventView{Event: evt, ID: rec.ID, Digest: rec.Digest, RecordedAt: rec.RecordedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	checked, err := s.svc.Audit(r.Context())
	if err != nil {
		s.writeError(w, r, "admin_audit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checked": checked, "intact": true})
}
