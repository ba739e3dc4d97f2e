package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/tip-staking/internal/staking"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// defaultEventLimit caps event pages when the caller gives no limit.
const defaultEventLimit = 100

// ── Staking queries ─────────────────────────────────────────────────────

func (s *Server) handleStakingGetUserInfo(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := s.engine.UserInfo(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return &UserInfoResult{
		Address:     addr.String(),
		Amount:      info.Amount.Dec(),
		Rewards:     info.Rewards.Dec(),
		DepositTime: info.DepositTime,
		UnlockTime:  info.UnlockTime,
	}, nil
}

func (s *Server) handleStakingPending(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pending, err := s.engine.Pending(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return &AmountResult{Amount: pending.Dec()}, nil
}

func (s *Server) handleStakingCanUnstakeWithoutPenalty(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BoolResult{Value: s.engine.CanUnstakeWithoutPenalty(addr)}, nil
}

func (s *Server) handleStakingCanClaimRewards(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BoolResult{Value: s.engine.CanClaimRewards(addr)}, nil
}

func (s *Server) handleStakingCalculatePenalty(req *Request) (interface{}, *Error) {
	var params PenaltyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	penalty, err := s.engine.CalculatePenalty(addr, amount)
	if err != nil {
		return nil, engineError(err)
	}
	return &AmountResult{Amount: penalty.Dec()}, nil
}

func (s *Server) handleStakingGetStats(req *Request) (interface{}, *Error) {
	stats := s.engine.Stats()
	custodyBal, err := s.engine.CustodyBalance()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("custody balance: %v", err)}
	}
	return &StatsResult{
		TotalStaked:    stats.TotalStaked.Dec(),
		RewardRate:     stats.RewardRate,
		MinLockPeriod:  stats.MinLockPeriod,
		Accounts:       s.engine.Accounts(),
		Paused:         s.engine.Paused(),
		Custody:        s.engine.Custody().String(),
		CustodyBalance: custodyBal.Dec(),
		TokenID:        s.engine.TokenID().String(),
	}, nil
}

func (s *Server) handleStakingGetParams(req *Request) (interface{}, *Error) {
	p := s.engine.Params()
	return &ParamsResult{
		RewardRate:         p.RewardRate,
		PenaltyRate:        p.PenaltyRate,
		MinLockPeriod:      p.MinLockPeriod,
		MinRewardThreshold: p.MinRewardThreshold.Dec(),
	}, nil
}

func (s *Server) handleStakingPaused(req *Request) (interface{}, *Error) {
	return &BoolResult{Value: s.engine.Paused()}, nil
}

func (s *Server) handleStakingOwner(req *Request) (interface{}, *Error) {
	return &OwnerResult{Owner: s.engine.Owner().String()}, nil
}

func (s *Server) handleStakingGetEvents(req *Request) (interface{}, *Error) {
	var params EventsParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	limit := eventLimit(params.Limit)
	return eventsResult(params.FromSeq, s.engine.Events(params.FromSeq, limit)), nil
}

func (s *Server) handleStakingWaitEvents(ctx context.Context, req *Request) (interface{}, *Error) {
	var params EventsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	timeout := defaultWaitTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}
	if timeout > maxWaitTimeout {
		timeout = maxWaitTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	evs, err := s.engine.EventLog().Wait(ctx, params.FromSeq, eventLimit(params.Limit))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	// A timeout is an empty page, not an error.
	return eventsResult(params.FromSeq, evs), nil
}

// eventsResult resumes after the last returned event so a page cut short
// by the limit does not skip the remainder.
func eventsResult(fromSeq uint64, evs []staking.Event) *EventsResult {
	if len(evs) == 0 {
		if fromSeq == 0 {
			fromSeq = 1
		}
		return &EventsResult{Events: []staking.Event{}, NextSeq: fromSeq}
	}
	return &EventsResult{
		Events:  evs,
		NextSeq: evs[len(evs)-1].Seq + 1,
	}
}

func eventLimit(limit int) int {
	if limit <= 0 || limit > defaultEventLimit {
		return defaultEventLimit
	}
	return limit
}

// ── Staking mutations ───────────────────────────────────────────────────

func (s *Server) handleStakingStake(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AmountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth, amount.Dec())
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Stake(ctx, caller, amount); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleStakingUnstake(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AmountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth, amount.Dec())
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Unstake(ctx, caller, amount); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleStakingClaimRewards(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AuthParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ClaimRewards(ctx, caller); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleAdminPause(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AuthParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Pause(ctx, caller); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleAdminUnpause(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AuthParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Unpause(ctx, caller); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleAdminEmergencyWithdraw(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WithdrawParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	// The zero address parses; the engine rejects it with its own reason.
	dest, rpcErr := parseAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth, dest.String())
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.EmergencyWithdraw(ctx, caller, dest); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetInfo(req *Request) (interface{}, *Error) {
	meta := s.ledger.Metadata()
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("total supply: %v", err)}
	}
	return &TokenInfoResult{
		TokenID:     s.ledger.ID().String(),
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		Creator:     meta.Creator.String(),
		TotalSupply: supply.Dec(),
	}, nil
}

func (s *Server) handleTokenBalanceOf(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.ledger.BalanceOf(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("balance: %v", err)}
	}
	return &AmountResult{Amount: bal.Dec()}, nil
}

func (s *Server) handleTokenAllowance(req *Request) (interface{}, *Error) {
	var params AllowanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress("spender", params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	allowance, err := s.ledger.Allowance(owner, spender)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("allowance: %v", err)}
	}
	return &AllowanceResult{
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: allowance.Dec(),
	}, nil
}

func (s *Server) handleTokenApprove(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ApproveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	spender, rpcErr := parseAddress("spender", params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth, spender.String(), amount.Dec())
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Approve(ctx, caller, spender, amount); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

func (s *Server) handleTokenTransfer(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	to, rpcErr := parseAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := s.authenticate(req.Method, params.Auth, to.String(), amount.Dec())
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Transfer(ctx, caller, to, amount); err != nil {
		return nil, engineError(err)
	}
	return opResult(caller, params.Auth), nil
}

// ── Auth ────────────────────────────────────────────────────────────────

func (s *Server) handleAuthGetNonce(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.nonces.Get(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("nonce: %v", err)}
	}
	return &NonceResult{Address: addr.String(), Nonce: nonce}, nil
}

// authenticate verifies a signed call and consumes its nonce. The nonce is
// spent even when the operation is later rejected.
func (s *Server) authenticate(method string, a Auth, args ...string) (types.Address, *Error) {
	caller, err := VerifyAuth(a, s.engine.TokenID(), method, args...)
	if err != nil {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: err.Error()}
	}
	if err := s.nonces.Use(caller, a.Nonce); err != nil {
		if errors.Is(err, ErrStaleNonce) {
			return types.Address{}, &Error{Code: CodeUnauthorized, Message: err.Error()}
		}
		return types.Address{}, &Error{Code: CodeInternalError, Message: fmt.Sprintf("nonce: %v", err)}
	}
	s.logger.Debug().
		Str("method", method).
		Str("caller", caller.String()).
		Uint64("nonce", a.Nonce).
		Msg("Authenticated call")
	return caller, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

func (s *Server) addressParam(req *Request) (types.Address, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return types.Address{}, err
	}
	return parseAddress("address", params.Address)
}

func parseAddress(field, v string) (types.Address, *Error) {
	if v == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	addr, err := types.ParseAddress(v)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}

func parseAmount(field, v string) (*uint256.Int, *Error) {
	if v == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	amount, err := types.ParseAmount(v)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return amount, nil
}

func opResult(caller types.Address, a Auth) *OpResult {
	return &OpResult{Caller: caller.String(), Nonce: a.Nonce}
}

// rejections are the reasons a well-formed call can be refused. They map
// to CodeRejected with the reason as the message.
var rejections = []error{
	staking.ErrZeroStake,
	staking.ErrZeroUnstake,
	staking.ErrInsufficientStake,
	staking.ErrNoStake,
	staking.ErrPaused,
	staking.ErrNotPaused,
	staking.ErrInvalidAddress,
	staking.ErrNoBalance,
	staking.ErrOverflow,
	token.ErrInsufficientBalance,
	token.ErrInsufficientAllowance,
	token.ErrInvalidReceiver,
	token.ErrInvalidSender,
	token.ErrInvalidSpender,
}

// engineError maps ledger errors to RPC errors. The full error chain goes
// into Data.
func engineError(err error) *Error {
	if errors.Is(err, staking.ErrUnauthorized) {
		return &Error{Code: CodeUnauthorized, Message: staking.ErrUnauthorized.Error(), Data: err.Error()}
	}
	for _, reason := range rejections {
		if errors.Is(err, reason) {
			return &Error{Code: CodeRejected, Message: reason.Error(), Data: err.Error()}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
