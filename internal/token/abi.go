package token

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const securityTokenABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "investor", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "identity", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "country", "type": "uint16"}
    ],
    "name": "IdentityRegistered",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "investor", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "identity", "type": "address"}
    ],
    "name": "IdentityRemoved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "identity", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "topic", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "issuer", "type": "address"},
      {"indexed": false, "internalType": "bytes", "name": "data", "type": "bytes"}
    ],
    "name": "ClaimAdded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "identity", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "topic", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "issuer", "type": "address"}
    ],
    "name": "ClaimRemoved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"}
    ],
    "name": "ModuleAdded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"}
    ],
    "name": "ModuleRemoved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "country", "type": "uint16"}
    ],
    "name": "CountryBlacklisted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "country", "type": "uint16"}
    ],
    "name": "CountryWhitelisted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "investor", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "releaseTime", "type": "uint256"}
    ],
    "name": "LockupSet",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "holderLimit", "type": "uint256"}
    ],
    "name": "HolderLimitSet",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "module", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "investor", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "country", "type": "uint16"},
      {"indexed": false, "internalType": "string", "name": "reason", "type": "string"}
    ],
    "name": "ComplianceViolation",
    "type": "event"
  }
]`

var (
	securityTokenABI     abi.ABI
	securityTokenABIOnce sync.Once
	securityTokenABIErr  error
)

// SecurityTokenABI returns the parsed ABI covering the permissioned-token
// event set (token, identity registry, claims, compliance modules).
func SecurityTokenABI() (abi.ABI, error) {
	securityTokenABIOnce.Do(func() {
		securityTokenABI, securityTokenABIErr = abi.JSON(strings.NewReader(securityTokenABIJSON))
	})
	return securityTokenABI, securityTokenABIErr
}
