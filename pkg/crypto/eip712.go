package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain binds wallet signatures to one venue deployment.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain builds the venue domain from the configured chain and exchange
// contract.
func NewDomain(chainID int64, exchangeContract string) EIP712Domain {
	return EIP712Domain{
		Name:              "IDEX",
		Version:           "4",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(exchangeContract),
	}
}

// OrderEIP712 is the wallet-signed part of an order request. Amounts are
// the eight-decimal strings sent on the wire; empty optional fields are
// signed as empty strings.
type OrderEIP712 struct {
	Nonce        string // v1 UUID
	Wallet       common.Address
	Market       string
	Type         string
	Side         string
	Quantity     string
	Price        string
	TriggerPrice string
	TriggerType  string
}

// CancelEIP712 is the wallet-signed part of a cancel request. An empty
// Market cancels across all markets.
type CancelEIP712 struct {
	Nonce  string
	Wallet common.Address
	Market string
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var orderType = []apitypes.Type{
	{Name: "nonce", Type: "string"},
	{Name: "wallet", Type: "address"},
	{Name: "market", Type: "string"},
	{Name: "type", Type: "string"},
	{Name: "side", Type: "string"},
	{Name: "quantity", Type: "string"},
	{Name: "price", Type: "string"},
	{Name: "triggerPrice", Type: "string"},
	{Name: "triggerType", Type: "string"},
}

var cancelType = []apitypes.Type{
	{Name: "nonce", Type: "string"},
	{Name: "wallet", Type: "address"},
	{Name: "market", Type: "string"},
}

// EIP712Signer hashes and signs venue requests under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

// HashOrder returns the EIP-712 digest of an order request.
func (e *EIP712Signer) HashOrder(order *OrderEIP712) ([]byte, error) {
	return e.hash("Order", orderType, apitypes.TypedDataMessage{
		"nonce":        order.Nonce,
		"wallet":       order.Wallet.Hex(),
		"market":       order.Market,
		"type":         order.Type,
		"side":         order.Side,
		"quantity":     order.Quantity,
		"price":        order.Price,
		"triggerPrice": order.TriggerPrice,
		"triggerType":  order.TriggerType,
	})
}

// HashCancel returns the EIP-712 digest of a cancel request.
func (e *EIP712Signer) HashCancel(cancel *CancelEIP712) ([]byte, error) {
	return e.hash("CancelOrders", cancelType, apitypes.TypedDataMessage{
		"nonce":  cancel.Nonce,
		"wallet": cancel.Wallet.Hex(),
		"market": cancel.Market,
	})
}

func (e *EIP712Signer) hash(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// SignOrder returns the hex wallet signature for an order request.
func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) (string, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return "", fmt.Errorf("failed to hash order: %w", err)
	}
	sig, err := signer.SignHex(hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign order: %w", err)
	}
	return sig, nil
}

// SignCancel returns the hex wallet signature for a cancel request.
func (e *EIP712Signer) SignCancel(signer *Signer, cancel *CancelEIP712) (string, error) {
	hash, err := e.HashCancel(cancel)
	if err != nil {
		return "", fmt.Errorf("failed to hash cancel: %w", err)
	}
	sig, err := signer.SignHex(hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign cancel: %w", err)
	}
	return sig, nil
}

// RecoverOrderSigner recovers the wallet that signed an order request.
func (e *EIP712Signer) RecoverOrderSigner(order *OrderEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyCancelSignature reports whether signature matches the cancel
// request and its wallet.
func (e *EIP712Signer) VerifyCancelSignature(cancel *CancelEIP712, signature []byte) (bool, error) {
	hash, err := e.HashCancel(cancel)
	if err != nil {
		return false, fmt.Errorf("failed to hash cancel: %w", err)
	}
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == cancel.Wallet, nil
}
