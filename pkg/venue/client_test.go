package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nardis556/ikon-loadGenerator/pkg/crypto"
	"github.com/nardis556/ikon-loadGenerator/pkg/retry"
)

const (
	testSecret   = "s3cret"
	testChainID  = 137
	testContract = "0x0000000000000000000000000000000000000abc"
)

type fakeVenue struct {
	t        *testing.T
	wallet   common.Address
	eip712   *crypto.EIP712Signer
	orders   atomic.Int32
	cancels  atomic.Int32
	rejectAs *APIError
}

func (f *fakeVenue) checkHMAC(r *http.Request, payload []byte) {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if got := r.Header.Get(headerSignature); got != want {
		f.t.Errorf("hmac header = %q, want %q", got, want)
	}
	if r.Header.Get(headerAPIKey) != "key-1" {
		f.t.Errorf("api key header = %q", r.Header.Get(headerAPIKey))
	}
}

func (f *fakeVenue) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v4/markets", func(w http.ResponseWriter, r *http.Request) {
		f.checkHMAC(r, []byte(r.URL.RawQuery))
		io.WriteString(w, `[{"baseAsset":"AAA","quoteAsset":"USD","tickSize":"0.01000000","stepSize":"0.00100000",
			"makerOrderMinimum":"0.01000000","takerOrderMinimum":"0.01000000","maximumPositionSize":"50.00000000","indexPrice":"100.00000000"}]`)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v4/orderbook", func(w http.ResponseWriter, r *http.Request) {
		f.checkHMAC(r, []byte(r.URL.RawQuery))
		if r.URL.Query().Get("level") != "2" || r.URL.Query().Get("market") != "AAA-USD" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"bids":[["99.90000000","1.00000000",1]],"asks":[["100.10000000","2.00000000",1]],"indexPrice":"100.00000000"}`)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v4/positions", func(w http.ResponseWriter, r *http.Request) {
		f.checkHMAC(r, []byte(r.URL.RawQuery))
		if r.URL.Query().Get("wallet") != f.wallet.Hex() || r.URL.Query().Get("nonce") == "" {
			http.Error(w, "missing wallet", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `[{"market":"AAA-USD","quantity":"-2.50000000"}]`)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v4/orders", func(w http.ResponseWriter, r *http.Request) {
		f.checkHMAC(r, []byte(r.URL.RawQuery))
		io.WriteString(w, `[{"orderId":"o-1","market":"AAA-USD","side":"buy","type":"limit","originalQuantity":"1.00000000","price":"99.00000000","status":"open"}]`)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v4/orders", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.checkHMAC(r, body)
		if f.rejectAs != nil {
			w.WriteHeader(f.rejectAs.Status)
			json.NewEncoder(w).Encode(f.rejectAs)
			return
		}
		var req struct {
			Parameters orderParameters `json:"parameters"`
			Signature  string          `json:"signature"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p := req.Parameters
		sig, err := hexutil.Decode(req.Signature)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		signer, err := f.eip712.RecoverOrderSigner(&crypto.OrderEIP712{
			Nonce: p.Nonce, Wallet: common.HexToAddress(p.Wallet), Market: p.Market,
			Type: string(p.Type), Side: string(p.Side), Quantity: p.Quantity, Price: p.Price,
			TriggerPrice: p.TriggerPrice, TriggerType: string(p.TriggerType),
		}, sig)
		if err != nil || signer != f.wallet {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"code":"INVALID_WALLET_SIGNATURE","message":"bad signature"}`)
			return
		}
		f.orders.Add(1)
		json.NewEncoder(w).Encode(Order{OrderID: "o-2", Market: p.Market, Side: p.Side, Type: p.Type, Quantity: p.Quantity, Price: p.Price})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v4/orders", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.checkHMAC(r, body)
		var req struct {
			Parameters cancelParameters `json:"parameters"`
			Signature  string           `json:"signature"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sig, _ := hexutil.Decode(req.Signature)
		ok, err := f.eip712.VerifyCancelSignature(&crypto.CancelEIP712{
			Nonce: req.Parameters.Nonce, Wallet: common.HexToAddress(req.Parameters.Wallet), Market: req.Parameters.Market,
		}, sig)
		if err != nil || !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.cancels.Add(1)
		io.WriteString(w, `[{"orderId":"o-1"},{"orderId":"o-3"}]`)
	}).Methods(http.MethodDelete)
	return r
}

func newTestClient(t *testing.T) (*RESTClient, *fakeVenue) {
	t.Helper()
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	fv := &fakeVenue{
		t:      t,
		wallet: signer.Address(),
		eip712: crypto.NewEIP712Signer(crypto.NewDomain(testChainID, testContract)),
	}
	srv := httptest.NewServer(fv.router())
	t.Cleanup(srv.Close)

	c, err := NewRESTClient(Config{
		BaseURL:          srv.URL,
		APIKey:           "key-1",
		APISecret:        testSecret,
		WalletPrivateKey: "0x" + signer.PrivateKeyHex(),
		ChainID:          testChainID,
		ExchangeContract: testContract,
	}, nil)
	require.NoError(t, err)
	return c, fv
}

func TestRESTClientReads(t *testing.T) {
	c, fv := newTestClient(t)
	ctx := context.Background()

	assert.Equal(t, fv.wallet.Hex(), c.Wallet())

	markets, err := c.GetMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "AAA-USD", markets[0].ID())

	book, err := c.GetOrderBookLevel2(ctx, "AAA-USD", 1000)
	require.NoError(t, err)
	assert.Equal(t, "100.1", book.BestAsk().String())

	positions, err := c.GetPositions(ctx, "AAA-USD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.IsNegative())

	orders, err := c.GetOrders(ctx, 200)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderTypeLimit, orders[0].Type)
}

func TestRESTClientCreateAndCancel(t *testing.T) {
	c, fv := newTestClient(t)
	ctx := context.Background()

	order, err := c.CreateOrder(ctx, OrderSpec{
		Market: "AAA-USD", Side: SideSell, Type: OrderTypeStopLossLimit,
		Quantity: "1.00000000", Price: "101.00000000",
		TriggerPrice: "100.50000000", TriggerType: TriggerTypeIndex,
	})
	require.NoError(t, err)
	assert.Equal(t, "o-2", order.OrderID)
	assert.Equal(t, int32(1), fv.orders.Load())

	cancelled, err := c.CancelOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)
	assert.Equal(t, int32(1), fv.cancels.Load())
}

func TestRESTClientDecodesAPIError(t *testing.T) {
	c, fv := newTestClient(t)
	fv.rejectAs = &APIError{Status: http.StatusForbidden, Code: CodeTradingDisabled, Message: "trading is disabled"}

	_, err := c.CreateOrder(context.Background(), OrderSpec{Market: "AAA-USD", Side: SideBuy, Type: OrderTypeMarket, Quantity: "1.00000000"})
	require.Error(t, err)
	assert.True(t, IsTradingDisabled(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestRESTClientPlainTextError(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.GetOrderBookLevel2(context.Background(), "BBB-USD", 10)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "bad query", apiErr.Message)
}

func TestNewRESTClientRejectsBadKey(t *testing.T) {
	_, err := NewRESTClient(Config{WalletPrivateKey: "zz"}, nil)
	assert.Error(t, err)
}

func TestRequestTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-time.After(200 * time.Millisecond):
		}
		io.WriteString(w, `[]`)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := NewRESTClient(Config{
		BaseURL:          srv.URL,
		APIKey:           "key-1",
		APISecret:        testSecret,
		WalletPrivateKey: "0x" + signer.PrivateKeyHex(),
		Timeout:          50 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	_, err = c.GetMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, IsTemporary(err), "client timeout should be retryable: %v", err)

	calls.Store(0)
	_, err = retry.DoValue(context.Background(), retry.Policy{Attempts: 3, Retryable: IsTemporary}, c.GetMarkets)
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(nil))
	assert.False(t, IsTemporary(context.Canceled))
	assert.True(t, IsTemporary(io.ErrUnexpectedEOF))
	assert.True(t, IsTemporary(&APIError{Status: http.StatusServiceUnavailable}))
	assert.False(t, IsTemporary(&APIError{Status: http.StatusBadRequest}))
}
