// Package clone deploys EIP-1167 minimal proxies at CREATE2 addresses.
package clone

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	creationPrefix = common.FromHex("0x3d602d80600a3d3981f3")
	runtimePrefix  = common.FromHex("0x363d3d373d3d3d363d73")
	runtimeSuffix  = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

// RuntimeCode returns the deployed code of a minimal proxy delegating every call to template.
func RuntimeCode(template common.Address) []byte {
	code := make([]byte, 0, len(runtimePrefix)+common.AddressLength+len(runtimeSuffix))
	code = append(code, runtimePrefix...)
	code = append(code, template.Bytes()...)
	code = append(code, runtimeSuffix...)
	return code
}

// CreationCode returns the init code that deploys RuntimeCode(template).
func CreationCode(template common.Address) []byte {
	runtime := RuntimeCode(template)
	code := make([]byte, 0, len(creationPrefix)+len(runtime))
	code = append(code, creationPrefix...)
	return append(code, runtime...)
}

// TemplateOf extracts the template address from proxy creation or runtime code.
func TemplateOf(code []byte) (common.Address, bool) {
	if bytes.HasPrefix(code, creationPrefix) {
		code = code[len(creationPrefix):]
	}
	if len(code) != len(runtimePrefix)+common.AddressLength+len(runtimeSuffix) {
		return common.Address{}, false
	}
	if !bytes.HasPrefix(code, runtimePrefix) || !bytes.HasSuffix(code, runtimeSuffix) {
		return common.Address{}, false
	}
	return common.BytesToAddress(code[len(runtimePrefix) : len(runtimePrefix)+common.AddressLength]), true
}

// PredictAddress returns the CREATE2 address a proxy for template gets when deployer uses salt.
// It performs no chain interaction.
func PredictAddress(template, deployer common.Address, salt common.Hash) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(CreationCode(template)))
}
