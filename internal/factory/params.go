package factory

import (
	"fmt"
	"math/big"
)

// Parameter names one configurable funding amount.
type Parameter string

const (
	InitialReplicaFunding Parameter = "initialReplicaFunding"
	InitialOwnerFunding   Parameter = "initialOwnerFunding"
	DefaultMemberFunding  Parameter = "defaultMemberFunding"
)

// Parameters lists every funding parameter.
var Parameters = []Parameter{InitialReplicaFunding, InitialOwnerFunding, DefaultMemberFunding}

// ParseParameter resolves a parameter by name.
func ParseParameter(name string) (Parameter, error) {
	for _, p := range Parameters {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown funding parameter %q", name)
}

// FundingParams holds the amounts, in the smallest currency unit, the factory hands out.
type FundingParams struct {
	InitialReplicaFunding *big.Int
	InitialOwnerFunding   *big.Int
	DefaultMemberFunding  *big.Int
}

// Get returns a copy of the value of p.
func (f FundingParams) Get(p Parameter) (*big.Int, error) {
	var v *big.Int
	switch p {
	case InitialReplicaFunding:
		v = f.InitialReplicaFunding
	case InitialOwnerFunding:
		v = f.InitialOwnerFunding
	case DefaultMemberFunding:
		v = f.DefaultMemberFunding
	default:
		return nil, fmt.Errorf("unknown funding parameter %q", p)
	}
	if v == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func (f *FundingParams) set(p Parameter, v *big.Int) {
	v = new(big.Int).Set(v)
	switch p {
	case InitialReplicaFunding:
		f.InitialReplicaFunding = v
	case InitialOwnerFunding:
		f.InitialOwnerFunding = v
	case DefaultMemberFunding:
		f.DefaultMemberFunding = v
	}
}

func (f FundingParams) clone() FundingParams {
	out := FundingParams{}
	for _, p := range Parameters {
		v, _ := f.Get(p)
		out.set(p, v)
	}
	return out
}
