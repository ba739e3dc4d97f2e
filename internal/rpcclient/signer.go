package rpcclient

import (
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/rpc"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// Signer sends authenticated calls on behalf of one key.
type Signer struct {
	client *Client
	key    *crypto.PrivateKey
	domain types.TokenID
}

// NewSigner binds key to the token served by the node behind c.
func NewSigner(c *Client, key *crypto.PrivateKey) (*Signer, error) {
	var info rpc.TokenInfoResult
	if err := c.Call("token_getInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("token info: %w", err)
	}
	h, err := types.HexToHash(info.TokenID)
	if err != nil {
		return nil, fmt.Errorf("token id: %w", err)
	}
	return &Signer{client: c, key: key, domain: types.TokenID(h)}, nil
}

// Address returns the signing account.
func (s *Signer) Address() types.Address {
	return s.key.Address()
}

// Auth signs method and args with the account's next nonce.
func (s *Signer) Auth(method string, args ...string) (rpc.Auth, error) {
	var n rpc.NonceResult
	if err := s.client.Call("auth_getNonce", rpc.AddressParam{Address: s.Address().String()}, &n); err != nil {
		return rpc.Auth{}, fmt.Errorf("nonce: %w", err)
	}
	return rpc.SignAuth(s.key, s.domain, method, n.Nonce+1, args...)
}

// Stake deposits amount into the staking engine.
func (s *Signer) Stake(amount *uint256.Int) (*rpc.OpResult, error) {
	a, err := s.Auth("staking_stake", amount.Dec())
	if err != nil {
		return nil, err
	}
	return s.call("staking_stake", rpc.AmountParam{Amount: amount.Dec(), Auth: a})
}

// Unstake withdraws amount of principal plus settled rewards.
func (s *Signer) Unstake(amount *uint256.Int) (*rpc.OpResult, error) {
	a, err := s.Auth("staking_unstake", amount.Dec())
	if err != nil {
		return nil, err
	}
	return s.call("staking_unstake", rpc.AmountParam{Amount: amount.Dec(), Auth: a})
}

// ClaimRewards pays out the pending reward.
func (s *Signer) ClaimRewards() (*rpc.OpResult, error) {
	a, err := s.Auth("staking_claimRewards")
	if err != nil {
		return nil, err
	}
	return s.call("staking_claimRewards", rpc.AuthParam{Auth: a})
}

// Pause halts user operations. Owner only.
func (s *Signer) Pause() (*rpc.OpResult, error) {
	a, err := s.Auth("admin_pause")
	if err != nil {
		return nil, err
	}
	return s.call("admin_pause", rpc.AuthParam{Auth: a})
}

// Unpause resumes user operations. Owner only.
func (s *Signer) Unpause() (*rpc.OpResult, error) {
	a, err := s.Auth("admin_unpause")
	if err != nil {
		return nil, err
	}
	return s.call("admin_unpause", rpc.AuthParam{Auth: a})
}

// EmergencyWithdraw sweeps the custody balance to to. Owner only.
func (s *Signer) EmergencyWithdraw(to types.Address) (*rpc.OpResult, error) {
	a, err := s.Auth("admin_emergencyWithdraw", to.String())
	if err != nil {
		return nil, err
	}
	return s.call("admin_emergencyWithdraw", rpc.WithdrawParam{To: to.String(), Auth: a})
}

// Approve sets spender's allowance over the account's tokens.
func (s *Signer) Approve(spender types.Address, amount *uint256.Int) (*rpc.OpResult, error) {
	a, err := s.Auth("token_approve", spender.String(), amount.Dec())
	if err != nil {
		return nil, err
	}
	return s.call("token_approve", rpc.ApproveParam{Spender: spender.String(), Amount: amount.Dec(), Auth: a})
}

// Transfer moves amount of the account's tokens to to.
func (s *Signer) Transfer(to types.Address, amount *uint256.Int) (*rpc.OpResult, error) {
	a, err := s.Auth("token_transfer", to.String(), amount.Dec())
	if err != nil {
		return nil, err
	}
	return s.call("token_transfer", rpc.TransferParam{To: to.String(), Amount: amount.Dec(), Auth: a})
}

func (s *Signer) call(method string, params interface{}) (*rpc.OpResult, error) {
	var res rpc.OpResult
	if err := s.client.Call(method, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
