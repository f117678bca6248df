package clone

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrDeploymentCollision is returned when code already exists at the target address.
var ErrDeploymentCollision = errors.New("deployment collision")

// Substrate is the execution environment that creates contracts.
//
// Create2 must place code at the CREATE2 address of (deployer, salt, code) and run init against it
// within the same atomic step: no caller may observe the account between the two. An occupied
// address fails with ErrDeploymentCollision.
type Substrate interface {
	Create2(ctx context.Context, deployer common.Address, salt common.Hash, code []byte, init []byte) (common.Address, error)
}

// Deployer deploys initialized clones on behalf of one deployer address.
type Deployer struct {
	substrate Substrate
	address   common.Address
}

func NewDeployer(substrate Substrate, address common.Address) *Deployer {
	return &Deployer{substrate: substrate, address: address}
}

// Address returns the deploying account.
func (d *Deployer) Address() common.Address {
	return d.address
}

// PredictAddress returns the address DeployAndInit produces for template and salt.
func (d *Deployer) PredictAddress(template common.Address, salt common.Hash) common.Address {
	return PredictAddress(template, d.address, salt)
}

// DeployAndInit deploys a proxy for template and calls it with initPayload in the same step.
func (d *Deployer) DeployAndInit(ctx context.Context, template common.Address, initPayload []byte, salt common.Hash) (common.Address, error) {
	if d.substrate == nil {
		return common.Address{}, fmt.Errorf("substrate is nil")
	}
	if len(initPayload) == 0 {
		return common.Address{}, fmt.Errorf("init payload is required")
	}

	addr, err := d.substrate.Create2(ctx, d.address, salt, CreationCode(template), initPayload)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy clone of %s: %w", template.Hex(), err)
	}

	if want := d.PredictAddress(template, salt); addr != want {
		return common.Address{}, fmt.Errorf("deployed at %s, predicted %s", addr.Hex(), want.Hex())
	}
	return addr, nil
}
