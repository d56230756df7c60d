package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/api"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/ledger"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
)

const maxBodyBytes = 1 << 16

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decode(w, r, dst, false)
}

// decodeOptionalBody accepts an empty body, chunked or not, and leaves dst
// untouched in that case.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeBadRequest(w, codeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, field, raw string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeBadRequest(w, codeInvalidAddress, field+": "+err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	amount, err := rebase.ParseAmount(raw)
	if err != nil {
		writeBadRequest(w, codeInvalidAmount, field+": must be a base-10 256-bit integer or \"max\"")
		return nil, false
	}
	return amount, true
}

func caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, ok := rbmw.CallerFromContext(r.Context())
	if !ok {
		rbmw.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing identity")
		return crypto.Address{}, false
	}
	return addr, true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(api.IdempotencyHeader))
}

func receiptJSON(receipt *ledger.Receipt) api.Receipt {
	out := api.Receipt{Amount: "0"}
	if receipt == nil {
		return out
	}
	if receipt.Amount != nil {
		out.Amount = receipt.Amount.String()
	}
	out.Timestamp = receipt.Timestamp
	out.Replayed = receipt.Replayed
	for _, accrual := range receipt.Accruals {
		out.Accruals = append(out.Accruals, api.Accrual{
			Account:  accrual.Account.String(),
			Interest: intString(accrual.Interest),
		})
	}
	return out
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Mint credits principal to an account. The caller needs mint_burn.
func (s *Server) Mint(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, ok := parseAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	receipt, err := s.ledger.Mint(r.Context(), from, to, amount, idempotencyKey(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

// Burn debits principal from an account. The caller needs mint_burn.
func (s *Server) Burn(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.BurnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, ok := parseAddress(w, "from", req.From)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	receipt, err := s.ledger.Burn(r.Context(), from, account, amount, idempotencyKey(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

// Transfer moves the caller's tokens.
func (s *Server) Transfer(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, ok := parseAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	receipt, err := s.ledger.Transfer(r.Context(), from, to, amount, idempotencyKey(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

// TransferFrom moves tokens on behalf of an owner using the caller's
// allowance.
func (s *Server) TransferFrom(w http.ResponseWriter, r *http.Request) {
	spender, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.TransferFromRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, ok := parseAddress(w, "from", req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	receipt, err := s.ledger.TransferFrom(r.Context(), spender, from, to, amount, idempotencyKey(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

// Approve sets the caller's allowance for a spender.
func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender, ok := parseAddress(w, "spender", req.Spender)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.ledger.Approve(r.Context(), owner, spender, amount, idempotencyKey(r)); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Allowance{Owner: owner.String(), Spender: spender.String(), Amount: amount.String()})
}

// Realize folds an account's pending interest into principal. Anyone may
// realize any account.
func (s *Server) Realize(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.RealizeRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	account := from
	if strings.TrimSpace(req.Account) != "" {
		if account, ok = parseAddress(w, "account", req.Account); !ok {
			return
		}
	}
	receipt, err := s.ledger.Realize(r.Context(), account, idempotencyKey(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

// SetRate moves the global rate. The caller needs rate_admin.
func (s *Server) SetRate(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.RateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rate, ok := new(big.Int).SetString(strings.TrimSpace(req.Rate), 10)
	if !ok || rate.Sign() < 0 {
		writeBadRequest(w, codeInvalidAmount, "rate: must be a non-negative base-10 integer")
		return
	}
	if err := s.ledger.SetGlobalRate(r.Context(), from, rate, idempotencyKey(r)); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.GetProtocol(w, r)
}

// GrantCapability adds a capability. The caller needs owner.
func (s *Server) GrantCapability(w http.ResponseWriter, r *http.Request) {
	s.changeCapability(w, r, s.ledger.Grant)
}

// RevokeCapability removes a capability. The caller needs owner.
func (s *Server) RevokeCapability(w http.ResponseWriter, r *http.Request) {
	s.changeCapability(w, r, s.ledger.Revoke)
}

type capabilityFunc func(ctx context.Context, caller, account crypto.Address, capability rebase.Capability, idemKey string) error

func (s *Server) changeCapability(w http.ResponseWriter, r *http.Request, apply capabilityFunc) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.CapabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, ok := parseAddress(w, "account", req.Account)
	if !ok {
		return
	}
	capability, err := rebase.ParseCapability(req.Capability)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := apply(r.Context(), from, account, capability, idempotencyKey(r)); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeCapabilities(w, r, account)
}

// SetPause pauses or resumes balance-changing operations. The caller needs
// owner.
func (s *Server) SetPause(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.PauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ledger.SetPaused(r.Context(), from, req.Paused, idempotencyKey(r)); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.GetProtocol(w, r)
}

// GetProtocol returns the protocol singleton.
func (s *Server) GetProtocol(w http.ResponseWriter, r *http.Request) {
	protocol, err := s.ledger.Protocol(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Protocol{
		GlobalRate:      intString(protocol.GlobalRate),
		Direction:       protocol.Direction.String(),
		PrincipalSupply: intString(protocol.PrincipalSupply),
		Paused:          protocol.Paused,
	})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) (*rebase.AccountView, bool) {
	addr, ok := parseAddress(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return nil, false
	}
	view, err := s.ledger.Account(r.Context(), addr)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return nil, false
	}
	return view, true
}

// GetAccount returns the full read model of an account.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	view, ok := s.account(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.Account{
		Address:     view.Address.String(),
		Balance:     intString(view.Balance),
		Principal:   intString(view.Principal),
		Rate:        intString(view.Rate),
		LastAccrual: view.LastAccrual,
		Pending:     intString(view.Pending),
	})
}

// GetBalance returns the effective balance including pending interest.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	if view, ok := s.account(w, r); ok {
		writeJSON(w, http.StatusOK, api.Value{Value: intString(view.Balance)})
	}
}

// GetPrincipal returns the stored principal.
func (s *Server) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	if view, ok := s.account(w, r); ok {
		writeJSON(w, http.StatusOK, api.Value{Value: intString(view.Principal)})
	}
}

// GetRate returns the rate locked for the account.
func (s *Server) GetRate(w http.ResponseWriter, r *http.Request) {
	if view, ok := s.account(w, r); ok {
		writeJSON(w, http.StatusOK, api.Value{Value: intString(view.Rate)})
	}
}

// GetCapabilities lists the capabilities an account holds.
func (s *Server) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	s.writeCapabilities(w, r, addr)
}

func (s *Server) writeCapabilities(w http.ResponseWriter, r *http.Request, account crypto.Address) {
	held, err := s.ledger.Capabilities(r.Context(), account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := api.Capabilities{Account: account.String(), Capabilities: make([]string, 0, len(held))}
	for _, capability := range held {
		out.Capabilities = append(out.Capabilities, string(capability))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAllowance returns what a spender may still move for an owner.
func (s *Server) GetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, "owner", chi.URLParam(r, "owner"))
	if !ok {
		return
	}
	spender, ok := parseAddress(w, "spender", chi.URLParam(r, "spender"))
	if !ok {
		return
	}
	amount, err := s.ledger.Allowance(r.Context(), owner, spender)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Allowance{Owner: owner.String(), Spender: spender.String(), Amount: intString(amount)})
}
