// Package sidechain is an in-process execution substrate for the secondary ledger: accounts with code and
// native balances, atomic CREATE2 deployment with initialization, and call routing to proxy logic.
package sidechain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"dataunion/internal/clone"
)

var (
	ErrNoCode              = errors.New("no code at address")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Contract is the state and behavior behind one deployed proxy.
type Contract interface {
	Call(ctx context.Context, self, caller common.Address, input []byte) ([]byte, error)
}

// Logic produces fresh contract state for each proxy delegating to a template.
type Logic interface {
	NewInstance() Contract
}

type account struct {
	code     []byte
	balance  *big.Int
	contract Contract
}

// Chain holds all accounts. Contract calls and deployments are serialized by one lock,
// so a deployment and its initialization are indivisible for every other caller.
type Chain struct {
	mu       sync.Mutex
	accounts map[common.Address]*account
	logic    map[common.Address]Logic
}

func New() *Chain {
	return &Chain{
		accounts: make(map[common.Address]*account),
		logic:    make(map[common.Address]Logic),
	}
}

// RegisterTemplate installs logic at a template address.
func (c *Chain) RegisterTemplate(template common.Address, logic Logic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logic[template] = logic
	acc := c.accountLocked(template)
	acc.code = []byte{0xfe}
}

// Create2 implements clone.Substrate.
func (c *Chain) Create2(ctx context.Context, deployer common.Address, salt common.Hash, code []byte, init []byte) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress2(deployer, salt, crypto.Keccak256(code))

	template, ok := clone.TemplateOf(code)
	if !ok {
		return common.Address{}, fmt.Errorf("unsupported creation code")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.accounts[addr]; ok && len(existing.code) > 0 {
		return common.Address{}, fmt.Errorf("%w: %s", clone.ErrDeploymentCollision, addr.Hex())
	}

	logic, ok := c.logic[template]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, template.Hex())
	}

	instance := logic.NewInstance()
	if len(init) > 0 {
		if _, err := instance.Call(ctx, addr, deployer, init); err != nil {
			return common.Address{}, fmt.Errorf("init %s: %w", addr.Hex(), err)
		}
	}

	acc := c.accountLocked(addr)
	acc.code = clone.RuntimeCode(template)
	acc.contract = instance
	return addr, nil
}

// CodeAt returns the runtime code at addr, empty when nothing is deployed.
func (c *Chain) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.accounts[addr]
	if !ok {
		return nil, nil
	}
	return common.CopyBytes(acc.code), nil
}

// Call invokes the contract at to on behalf of caller.
func (c *Chain) Call(ctx context.Context, caller, to common.Address, input []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.accounts[to]
	if !ok || acc.contract == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, to.Hex())
	}
	return acc.contract.Call(ctx, to, caller, input)
}

// BalanceAt returns the native balance of addr.
func (c *Chain) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.accounts[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(acc.balance), nil
}

// Transfer moves amount from one account to another.
func (c *Chain) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.accountLocked(from)
	if src.balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src.balance, amount)
	}
	dst := c.accountLocked(to)
	src.balance.Sub(src.balance, amount)
	dst.balance.Add(dst.balance, amount)
	return nil
}

// Mint credits addr with amount out of thin air.
func (c *Chain) Mint(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc := c.accountLocked(addr)
	acc.balance.Add(acc.balance, amount)
}

func (c *Chain) accountLocked(addr common.Address) *account {
	acc, ok := c.accounts[addr]
	if !ok {
		acc = &account{balance: new(big.Int)}
		c.accounts[addr] = acc
	}
	return acc
}
