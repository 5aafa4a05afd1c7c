package rpc

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/guillotine/guillotine/core/types"
)

// mockTxPoolBackend implements TxPoolBackend for testing txpool_status and
// txpool_content, backed by plain slices the test sets up directly.
type mockTxPoolBackend struct {
	*mockBackend
	pending []*types.Transaction
	queued  []*types.Transaction
}

func newMockTxPoolBackend() *mockTxPoolBackend {
	return &mockTxPoolBackend{mockBackend: newMockBackend()}
}

func (b *mockTxPoolBackend) PendingTransactions() []*types.Transaction { return b.pending }
func (b *mockTxPoolBackend) QueuedTransactions() []*types.Transaction  { return b.queued }

func TestNewTxPoolAPI(t *testing.T) {
	mb := newMockTxPoolBackend()
	api := NewTxPoolAPI(mb)
	if api == nil {
		t.Fatal("expected non-nil TxPoolAPI")
	}
}

func TestTxPoolAPI_Status_Empty(t *testing.T) {
	api := NewTxPoolAPI(newMockTxPoolBackend())
	req := &Request{JSONRPC: "2.0", Method: "txpool_status", ID: json.RawMessage(`1`)}
	resp := api.Status(req)

	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result, ok := resp.Result.(*TxPoolStatusResult)
	if !ok {
		t.Fatalf("result not *TxPoolStatusResult: %T", resp.Result)
	}
	if result.Pending != "0x0" {
		t.Fatalf("want pending 0x0, got %s", result.Pending)
	}
	if result.Queued != "0x0" {
		t.Fatalf("want queued 0x0, got %s", result.Queued)
	}
}

func TestTxPoolAPI_Status_WithTxs(t *testing.T) {
	mb := newMockTxPoolBackend()
	sender := types.HexToAddress("0xaaaa")

	for i := 0; i < 3; i++ {
		tx := types.NewTransaction(&types.LegacyTx{Nonce: uint64(i), Gas: 21000})
		tx.SetSender(sender)
		mb.pending = append(mb.pending, tx)
	}
	for i := 0; i < 2; i++ {
		tx := types.NewTransaction(&types.LegacyTx{Nonce: uint64(100 + i), Gas: 21000})
		tx.SetSender(sender)
		mb.queued = append(mb.queued, tx)
	}

	api := NewTxPoolAPI(mb)
	req := &Request{JSONRPC: "2.0", Method: "txpool_status", ID: json.RawMessage(`1`)}
	resp := api.Status(req)
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result := resp.Result.(*TxPoolStatusResult)
	if result.Pending != "0x3" {
		t.Fatalf("want pending 0x3, got %s", result.Pending)
	}
	if result.Queued != "0x2" {
		t.Fatalf("want queued 0x2, got %s", result.Queued)
	}
}

func TestTxPoolAPI_Content_Empty(t *testing.T) {
	api := NewTxPoolAPI(newMockTxPoolBackend())
	req := &Request{JSONRPC: "2.0", Method: "txpool_content", ID: json.RawMessage(`1`)}
	resp := api.Content(req)

	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result, ok := resp.Result.(*TxPoolContentResult)
	if !ok {
		t.Fatalf("result not *TxPoolContentResult: %T", resp.Result)
	}
	if len(result.Pending) != 0 {
		t.Fatalf("want 0 pending senders, got %d", len(result.Pending))
	}
	if len(result.Queued) != 0 {
		t.Fatalf("want 0 queued senders, got %d", len(result.Queued))
	}
}

func TestTxPoolAPI_Content_WithTxs(t *testing.T) {
	mb := newMockTxPoolBackend()
	sender := types.HexToAddress("0xaaaa")

	tx1 := types.NewTransaction(&types.LegacyTx{Nonce: 1, Gas: 21000})
	tx1.SetSender(sender)
	tx2 := types.NewTransaction(&types.LegacyTx{Nonce: 2, Gas: 21000})
	tx2.SetSender(sender)
	mb.pending = []*types.Transaction{tx1, tx2}

	tx3 := types.NewTransaction(&types.LegacyTx{Nonce: 100, Gas: 21000})
	tx3.SetSender(sender)
	mb.queued = []*types.Transaction{tx3}

	api := NewTxPoolAPI(mb)
	req := &Request{JSONRPC: "2.0", Method: "txpool_content", ID: json.RawMessage(`1`)}
	resp := api.Content(req)
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result := resp.Result.(*TxPoolContentResult)
	if len(result.Pending) != 1 {
		t.Fatalf("want 1 pending sender, got %d", len(result.Pending))
	}
	if len(result.Queued) != 1 {
		t.Fatalf("want 1 queued sender, got %d", len(result.Queued))
	}
	senderHex := encodeAddress(sender)
	if len(result.Pending[senderHex]) != 2 {
		t.Fatalf("want 2 pending txs for sender, got %d", len(result.Pending[senderHex]))
	}
}

func TestGroupTxsBySenderAndNonce(t *testing.T) {
	sender := types.HexToAddress("0xaaaa")
	tx := types.NewTransaction(&types.LegacyTx{Nonce: 5, Gas: 21000})
	tx.SetSender(sender)

	result := groupTxsBySenderAndNonce([]*types.Transaction{tx})
	if len(result) != 1 {
		t.Fatalf("want 1 entry, got %d", len(result))
	}
	found := false
	for _, nonceMap := range result {
		if len(nonceMap) > 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected non-empty nonce map")
	}
}

func TestEthAPI_TxPoolDispatch(t *testing.T) {
	mb := newMockTxPoolBackend()
	api := NewEthAPI(mb)

	req := &Request{JSONRPC: "2.0", Method: "txpool_status", ID: json.RawMessage(`1`)}
	resp := api.HandleRequest(req)
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	if _, ok := resp.Result.(*TxPoolStatusResult); !ok {
		t.Fatalf("result not *TxPoolStatusResult: %T", resp.Result)
	}
}

func TestEthAPI_TxPoolDispatch_Unavailable(t *testing.T) {
	api := NewEthAPI(newMockBackend())
	req := &Request{JSONRPC: "2.0", Method: "txpool_status", ID: json.RawMessage(`1`)}
	resp := api.HandleRequest(req)
	if resp.Error == nil {
		t.Fatal("expected error when backend lacks TxPoolBackend")
	}
}

func TestEffectiveGasPrice_Legacy(t *testing.T) {
	tx := types.NewTransaction(&types.LegacyTx{GasPrice: big.NewInt(5000)})
	price := EffectiveGasPrice(tx, big.NewInt(1000))
	if price.Int64() != 5000 {
		t.Fatalf("want 5000, got %d", price.Int64())
	}
}

func TestEffectiveGasPrice_EIP1559(t *testing.T) {
	tx := types.NewTransaction(&types.DynamicFeeTx{
		GasTipCap: big.NewInt(2000),
		GasFeeCap: big.NewInt(10000),
	})
	baseFee := big.NewInt(3000)
	price := EffectiveGasPrice(tx, baseFee)
	// effective = min(2000 + 3000, 10000) = 5000
	if price.Int64() != 5000 {
		t.Fatalf("want 5000, got %d", price.Int64())
	}
}

func TestEffectiveGasPrice_EIP1559_Capped(t *testing.T) {
	tx := types.NewTransaction(&types.DynamicFeeTx{
		GasTipCap: big.NewInt(8000),
		GasFeeCap: big.NewInt(10000),
	})
	baseFee := big.NewInt(5000)
	price := EffectiveGasPrice(tx, baseFee)
	// effective = min(8000 + 5000, 10000) = 10000
	if price.Int64() != 10000 {
		t.Fatalf("want 10000, got %d", price.Int64())
	}
}

func TestEffectiveGasPrice_NilBaseFee(t *testing.T) {
	tx := types.NewTransaction(&types.LegacyTx{GasPrice: big.NewInt(5000)})
	price := EffectiveGasPrice(tx, nil)
	if price.Int64() != 5000 {
		t.Fatalf("want 5000, got %d", price.Int64())
	}
}
