package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/core"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/position"
	"RangeLedger/internal/venue"
)

type positionRequest struct {
	Owner         string `json:"owner"`
	TokenID       string `json:"token_id"`
	OldTokenID    string `json:"old_token_id,omitempty"`
	NewTokenID    string `json:"new_token_id,omitempty"`
	Size          string `json:"size"`
	TickLimitLow  int32  `json:"tick_limit_low"`
	TickLimitHigh int32  `json:"tick_limit_high"`
}

type transferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id"`
	Amount  string `json:"amount"`
}

type pairBody struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}

type receiptResponse struct {
	Collected pairBody `json:"collected"`
	Moved     pairBody `json:"moved"`
	NewTick   int32    `json:"new_tick"`
}

func pairOut(p fpmath.TokenPair) pairBody {
	return pairBody{Token0: p.Right().String(), Token1: p.Left().String()}
}

func receiptOut(rc core.Receipt) receiptResponse {
	return receiptResponse{
		Collected: pairOut(rc.Collected),
		Moved:     pairOut(rc.Moved),
		NewTick:   rc.NewTick,
	}
}

func parseOwner(raw string) (uuid.UUID, error) {
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: owner %q", errBadRequest, raw)
	}
	return owner, nil
}

func parseTokenID(raw string) (*uint256.Int, error) {
	id, err := uint256.FromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: token id %q", errBadRequest, raw)
	}
	return id, nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q", errBadRequest, raw)
	}
	return v, nil
}

func (s *Server) decodeBody(r *http.Request, dst any) error {
	if err := jsonDecode(r, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, "mint", err)
		return
	}
	owner, err := parseOwner(req.Owner)
	if err != nil {
		s.respondError(w, "mint", err)
		return
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		s.respondError(w, "mint", err)
		return
	}
	size, err := parseAmount(req.Size)
	if err != nil {
		s.respondError(w, "mint", err)
		return
	}
	rc, err := s.service.Mint(owner, id, size, req.TickLimitLow, req.TickLimitHigh)
	if err != nil {
		s.respondError(w, "mint", err)
		return
	}
	s.respond(w, http.StatusOK, receiptOut(rc))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, "burn", err)
		return
	}
	owner, err := parseOwner(req.Owner)
	if err != nil {
		s.respondError(w, "burn", err)
		return
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		s.respondError(w, "burn", err)
		return
	}
	size, err := parseAmount(req.Size)
	if err != nil {
		s.respondError(w, "burn", err)
		return
	}
	rc, err := s.service.Burn(owner, id, size, req.TickLimitLow, req.TickLimitHigh)
	if err != nil {
		s.respondError(w, "burn", err)
		return
	}
	s.respond(w, http.StatusOK, receiptOut(rc))
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, "roll", err)
		return
	}
	owner, err := parseOwner(req.Owner)
	if err != nil {
		s.respondError(w, "roll", err)
		return
	}
	oldID, err := parseTokenID(req.OldTokenID)
	if err != nil {
		s.respondError(w, "roll", err)
		return
	}
	newID, err := parseTokenID(req.NewTokenID)
	if err != nil {
		s.respondError(w, "roll", err)
		return
	}
	size, err := parseAmount(req.Size)
	if err != nil {
		s.respondError(w, "roll", err)
		return
	}
	rc, err := s.service.Roll(owner, oldID, newID, size, req.TickLimitLow, req.TickLimitHigh)
	if err != nil {
		s.respondError(w, "roll", err)
		return
	}
	s.respond(w, http.StatusOK, receiptOut(rc))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	from, err := parseOwner(req.From)
	if err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	to, err := parseOwner(req.To)
	if err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	id, err := parseTokenID(req.TokenID)
	if err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	if err := s.service.Transfer(from, to, id, amount); err != nil {
		s.respondError(w, "transfer", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.service.Pools())
}

func (s *Server) handleOwnerAccounts(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(chi.URLParam(r, "owner"))
	if err != nil {
		s.respondError(w, "accounts", err)
		return
	}
	type accountBody struct {
		PoolID    uint64 `json:"pool_id"`
		TokenType uint8  `json:"token_type"`
		TickLower int32  `json:"tick_lower"`
		TickUpper int32  `json:"tick_upper"`
	}
	keys := s.service.OwnerAccounts(owner)
	out := make([]accountBody, 0, len(keys))
	for _, k := range keys {
		out = append(out, accountBody{
			PoolID:    k.Chunk.PoolID,
			TokenType: uint8(k.Chunk.TokenType),
			TickLower: k.Chunk.TickLower,
			TickUpper: k.Chunk.TickUpper,
		})
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(chi.URLParam(r, "owner"))
	if err != nil {
		s.respondError(w, "balance", err)
		return
	}
	id, err := parseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, "balance", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"balance": s.service.Balance(owner, id).String()})
}

// chunkParams parses the pool/owner path segments plus the chunk query
// parameters shared by the liquidity, premium and fees-base endpoints.
func chunkParams(r *http.Request) (uint64, uuid.UUID, position.TokenType, venue.Range, error) {
	poolID, err := strconv.ParseUint(chi.URLParam(r, "pool"), 10, 64)
	if err != nil {
		return 0, uuid.Nil, 0, venue.Range{}, fmt.Errorf("%w: pool id", errBadRequest)
	}
	owner, err := parseOwner(chi.URLParam(r, "owner"))
	if err != nil {
		return 0, uuid.Nil, 0, venue.Range{}, err
	}
	q := r.URL.Query()
	tt, err := strconv.ParseUint(q.Get("token_type"), 10, 8)
	if err != nil || tt > 1 {
		return 0, uuid.Nil, 0, venue.Range{}, fmt.Errorf("%w: token_type", errBadRequest)
	}
	lower, err := strconv.ParseInt(q.Get("tick_lower"), 10, 32)
	if err != nil {
		return 0, uuid.Nil, 0, venue.Range{}, fmt.Errorf("%w: tick_lower", errBadRequest)
	}
	upper, err := strconv.ParseInt(q.Get("tick_upper"), 10, 32)
	if err != nil {
		return 0, uuid.Nil, 0, venue.Range{}, fmt.Errorf("%w: tick_upper", errBadRequest)
	}
	return poolID, owner, position.TokenType(tt), venue.Range{TickLower: int32(lower), TickUpper: int32(upper)}, nil
}

func (s *Server) handleAccountLiquidity(w http.ResponseWriter, r *http.Request) {
	poolID, owner, tt, rng, err := chunkParams(r)
	if err != nil {
		s.respondError(w, "liquidity", err)
		return
	}
	removed, net, err := s.service.AccountLiquidity(poolID, owner, tt, rng)
	if err != nil {
		s.respondError(w, "liquidity", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"removed": removed.Dec(),
		"net":     net.Dec(),
	})
}

func (s *Server) handlePremium(w http.ResponseWriter, r *http.Request) {
	poolID, owner, tt, rng, err := chunkParams(r)
	if err != nil {
		s.respondError(w, "premium", err)
		return
	}
	long := r.URL.Query().Get("long") == "true"
	current := r.URL.Query().Get("current") == "true"
	p0, p1, err := s.service.Premium(poolID, owner, tt, rng, long, current)
	if err != nil {
		s.respondError(w, "premium", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"premium0_x64": p0.Dec(),
		"premium1_x64": p1.Dec(),
	})
}

func (s *Server) handleFeesBase(w http.ResponseWriter, r *http.Request) {
	poolID, owner, tt, rng, err := chunkParams(r)
	if err != nil {
		s.respondError(w, "fees_base", err)
		return
	}
	b0, b1, err := s.service.FeesBase(poolID, owner, tt, rng)
	if err != nil {
		s.respondError(w, "fees_base", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"base0": b0.Dec(),
		"base1": b1.Dec(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := int64(0)
	if raw := q.Get("from"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, "events", fmt.Errorf("%w: from", errBadRequest))
			return
		}
		from = v
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 1000 {
			s.respondError(w, "events", fmt.Errorf("%w: limit", errBadRequest))
			return
		}
		limit = v
	}
	rows, err := s.service.RecentEvents(r.Context(), from, limit)
	if err != nil {
		s.respondError(w, "events", err)
		return
	}
	s.respond(w, http.StatusOK, rows)
}
