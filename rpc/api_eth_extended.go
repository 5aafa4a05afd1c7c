package rpc

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/guillotine/guillotine/core/types"
	"github.com/guillotine/guillotine/crypto"
)

// EthExtendedAPI provides additional eth_ namespace RPC methods that
// complement the core EthAPI. It wraps a Backend for chain access and
// maintains an optional keystore for signing operations.
type EthExtendedAPI struct {
	mu       sync.RWMutex
	backend  Backend
	accounts map[types.Address]*ecdsa.PrivateKey
}

// NewEthExtendedAPI creates a new extended API backed by the given backend.
func NewEthExtendedAPI(backend Backend) *EthExtendedAPI {
	return &EthExtendedAPI{
		backend:  backend,
		accounts: make(map[types.Address]*ecdsa.PrivateKey),
	}
}

// HandleExtRequest dispatches a legacy/auxiliary eth_ namespace method that
// EthAPI delegates here rather than implementing directly.
func (api *EthExtendedAPI) HandleExtRequest(req *Request) *Response {
	switch req.Method {
	case "eth_getUncleByBlockHashAndIndex":
		if len(req.Params) < 2 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing block hash or index")
		}
		var hashHex string
		var index uint64
		if err := json.Unmarshal(req.Params[0], &hashHex); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := json.Unmarshal(req.Params[1], &index); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		uncle := api.GetUncleByBlockHashAndIndex(types.HexToHash(hashHex), index)
		if uncle == nil {
			return successResponse(req.ID, nil)
		}
		return successResponse(req.ID, FormatHeader(uncle))
	case "eth_getUncleByBlockNumberAndIndex":
		if len(req.Params) < 2 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing block number or index")
		}
		var number, index uint64
		if err := json.Unmarshal(req.Params[0], &number); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := json.Unmarshal(req.Params[1], &index); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		uncle := api.GetUncleByBlockNumberAndIndex(number, index)
		if uncle == nil {
			return successResponse(req.ID, nil)
		}
		return successResponse(req.ID, FormatHeader(uncle))
	case "eth_getUncleCountByBlockHash":
		if len(req.Params) < 1 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing block hash")
		}
		var hashHex string
		if err := json.Unmarshal(req.Params[0], &hashHex); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return successResponse(req.ID, encodeUint64(api.GetUncleCountByBlockHash(types.HexToHash(hashHex))))
	case "eth_getUncleCountByBlockNumber":
		if len(req.Params) < 1 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing block number")
		}
		var number uint64
		if err := json.Unmarshal(req.Params[0], &number); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return successResponse(req.ID, encodeUint64(api.GetUncleCountByBlockNumber(number)))
	case "eth_getWork":
		return successResponse(req.ID, api.GetWork())
	case "eth_accounts":
		accounts := api.Accounts()
		hexes := make([]string, len(accounts))
		for i, addr := range accounts {
			hexes[i] = encodeAddress(addr)
		}
		return successResponse(req.ID, hexes)
	case "eth_sign":
		if len(req.Params) < 2 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing address or data")
		}
		var addrHex, dataHex string
		if err := json.Unmarshal(req.Params[0], &addrHex); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := json.Unmarshal(req.Params[1], &dataHex); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		sig, err := api.Sign(types.HexToAddress(addrHex), fromHexBytes(dataHex))
		if err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return successResponse(req.ID, encodeBytes(sig))
	case "eth_getCompilers":
		return successResponse(req.ID, api.GetCompilers())
	case "eth_createAccessList":
		if len(req.Params) < 1 {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing call object")
		}
		var call CallArgs
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if call.To == nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, "missing to address")
		}
		to := types.HexToAddress(*call.To)
		data := call.GetData()
		var gas uint64
		if call.Gas != nil {
			gas = parseHexUint64(*call.Gas)
		}
		list := api.CreateAccessList(to, data, gas)
		return successResponse(req.ID, list)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, "method "+req.Method+" not found")
	}
}

// AddAccount registers a private key so the address is returned by
// Accounts() and available for Sign().
func (api *EthExtendedAPI) AddAccount(key *ecdsa.PrivateKey) types.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	api.mu.Lock()
	defer api.mu.Unlock()
	api.accounts[addr] = key
	return addr
}

// GetUncleByBlockHashAndIndex returns the uncle header at the given
// index within the block identified by hash. Post-merge, there are
// no uncles so this always returns nil.
func (api *EthExtendedAPI) GetUncleByBlockHashAndIndex(blockHash types.Hash, index uint64) *types.Header {
	return nil
}

// GetUncleByBlockNumberAndIndex returns the uncle header at the given
// index within the block identified by number. Post-merge, always nil.
func (api *EthExtendedAPI) GetUncleByBlockNumberAndIndex(blockNumber uint64, index uint64) *types.Header {
	return nil
}

// GetUncleCountByBlockHash returns the number of uncles in the block
// identified by hash. Post-merge: always 0.
func (api *EthExtendedAPI) GetUncleCountByBlockHash(blockHash types.Hash) uint64 {
	return 0
}

// GetUncleCountByBlockNumber returns the number of uncles in the block
// identified by number. Post-merge: always 0.
func (api *EthExtendedAPI) GetUncleCountByBlockNumber(blockNumber uint64) uint64 {
	return 0
}

// GetWork returns mining work for a PoW miner. This is a legacy method;
// post-merge it returns dummy values since Ethereum uses PoS.
func (api *EthExtendedAPI) GetWork() [3]string {
	return [3]string{
		"0x0000000000000000000000000000000000000000000000000000000000000000",
		"0x0000000000000000000000000000000000000000000000000000000000000000",
		"0x0000000000000000000000000000000000000000000000000000000000000000",
	}
}

// Accounts returns the list of addresses managed by the local keystore.
func (api *EthExtendedAPI) Accounts() []types.Address {
	api.mu.RLock()
	defer api.mu.RUnlock()

	result := make([]types.Address, 0, len(api.accounts))
	for addr := range api.accounts {
		result = append(result, addr)
	}
	return result
}

// Sign produces a secp256k1 ECDSA signature of data using the private
// key associated with addr. The data is hashed with Keccak256 before
// signing, following the Ethereum personal_sign convention. Returns an
// error if the address is not in the local keystore.
func (api *EthExtendedAPI) Sign(addr types.Address, data []byte) ([]byte, error) {
	api.mu.RLock()
	key, ok := api.accounts[addr]
	api.mu.RUnlock()

	if !ok {
		return nil, errors.New("account not found: " + addr.Hex())
	}

	hash := crypto.Keccak256(data)
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// GetStorageAt returns the value stored at the given key in the
// account's storage. Uses the latest block state.
func (api *EthExtendedAPI) GetStorageAt(addr types.Address, key types.Hash) types.Hash {
	header := api.backend.CurrentHeader()
	if header == nil {
		return types.Hash{}
	}
	statedb, err := api.backend.StateAt(header.Root)
	if err != nil {
		return types.Hash{}
	}
	return statedb.GetState(addr, key)
}

// GetCompilers returns the list of available compilers. This is a
// legacy method that always returns an empty list in modern clients.
func (api *EthExtendedAPI) GetCompilers() []string {
	return []string{}
}

// CreateAccessList simulates a transaction to the given address with
// the provided data and gas limit, and returns a list of storage
// slots accessed during execution. A full implementation would trace
// the EVM execution; this returns a minimal access list containing
// only the destination address.
func (api *EthExtendedAPI) CreateAccessList(to types.Address, data []byte, gasLimit uint64) []types.AccessTuple {
	if gasLimit == 0 {
		gasLimit = 50_000_000
	}

	// Execute the call to verify it succeeds. The real implementation
	// would capture all accessed addresses and storage keys.
	_, _, err := api.backend.EVMCall(
		types.Address{},
		&to,
		data,
		gasLimit,
		new(big.Int),
		LatestBlockNumber,
	)
	if err != nil {
		// If the call fails, return an empty access list.
		return []types.AccessTuple{}
	}

	// A proper implementation would instrument the EVM to record all
	// SLOAD/SSTORE operations. For now, return a minimal access list
	// with just the target address.
	return []types.AccessTuple{
		{
			Address:     to,
			StorageKeys: []types.Hash{},
		},
	}
}
