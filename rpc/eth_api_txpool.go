package rpc

import (
	"math/big"

	"github.com/guillotine/guillotine/core/types"
)

// TxPoolBackend extends the base Backend interface with transaction pool
// introspection methods required by txpool_status and txpool_content.
type TxPoolBackend interface {
	Backend
	// PendingTransactions returns all processable transactions in the pool.
	PendingTransactions() []*types.Transaction
	// QueuedTransactions returns all queued (non-promotable) transactions.
	QueuedTransactions() []*types.Transaction
}

// TxPoolAPI serves the txpool_ namespace, reporting live pending/queued
// contents from the node's real transaction pool (via TxPoolBackend).
type TxPoolAPI struct {
	backend TxPoolBackend
}

// NewTxPoolAPI creates a new txpool_ namespace API service.
func NewTxPoolAPI(backend TxPoolBackend) *TxPoolAPI {
	return &TxPoolAPI{backend: backend}
}

// HandleTxPoolRequest dispatches a txpool_ namespace JSON-RPC request.
func (api *TxPoolAPI) HandleTxPoolRequest(req *Request) *Response {
	switch req.Method {
	case "txpool_status":
		return api.Status(req)
	case "txpool_content":
		return api.Content(req)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, "method "+req.Method+" not found")
	}
}

// TxPoolStatusResult is the response payload for txpool_status.
type TxPoolStatusResult struct {
	Pending string `json:"pending"`
	Queued  string `json:"queued"`
}

// Status returns the number of pending and queued transactions in the pool.
func (api *TxPoolAPI) Status(req *Request) *Response {
	pending := api.backend.PendingTransactions()
	queued := api.backend.QueuedTransactions()

	result := &TxPoolStatusResult{
		Pending: encodeUint64(uint64(len(pending))),
		Queued:  encodeUint64(uint64(len(queued))),
	}
	return successResponse(req.ID, result)
}

// TxPoolContentResult is the response payload for txpool_content.
type TxPoolContentResult struct {
	Pending map[string]map[string]*RPCTransaction `json:"pending"`
	Queued  map[string]map[string]*RPCTransaction `json:"queued"`
}

// Content returns the full contents of the transaction pool, organized
// by sender address and nonce.
func (api *TxPoolAPI) Content(req *Request) *Response {
	result := &TxPoolContentResult{
		Pending: groupTxsBySenderAndNonce(api.backend.PendingTransactions()),
		Queued:  groupTxsBySenderAndNonce(api.backend.QueuedTransactions()),
	}
	return successResponse(req.ID, result)
}

// groupTxsBySenderAndNonce converts a flat transaction slice into the
// JSON-RPC txpool_content format: address -> nonce_string -> RPCTransaction.
func groupTxsBySenderAndNonce(txs []*types.Transaction) map[string]map[string]*RPCTransaction {
	result := make(map[string]map[string]*RPCTransaction)
	for _, tx := range txs {
		var sender types.Address
		if s := tx.Sender(); s != nil {
			sender = *s
		}
		addrHex := encodeAddress(sender)
		nonceMap, ok := result[addrHex]
		if !ok {
			nonceMap = make(map[string]*RPCTransaction)
			result[addrHex] = nonceMap
		}
		nonceMap[encodeUint64(tx.Nonce())] = FormatTransaction(tx, nil, nil, nil)
	}
	return result
}

// EffectiveGasPrice computes the effective gas price for a transaction
// given the block's base fee. For legacy transactions, this is the gas
// price. For EIP-1559 transactions, it's min(gasTipCap + baseFee, gasFeeCap).
func EffectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil || tx.GasTipCap() == nil || tx.GasFeeCap() == nil {
		return tx.GasPrice()
	}
	// effective = min(gasTipCap + baseFee, gasFeeCap)
	effective := new(big.Int).Add(tx.GasTipCap(), baseFee)
	if effective.Cmp(tx.GasFeeCap()) > 0 {
		effective.Set(tx.GasFeeCap())
	}
	return effective
}
