// Package remote exposes wallet daemons reached over HTTP as wallet
// providers, either injected under a global key or as optional packages.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
)

// userRejectedCode is the wallet-standard error code for a declined request.
const userRejectedCode = 4001

// Config holds provider configuration.
type Config struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Provider talks to one wallet daemon. It statically implements every
// provider capability and reports the daemon's actual set via Supports.
type Provider struct {
	name       string
	baseURL    string
	httpClient *http.Client

	methods map[string]bool

	mu        sync.RWMutex
	publicKey solana.PublicKey
}

var (
	_ wallet.CapabilityReporter     = (*Provider)(nil)
	_ wallet.AddressReporter        = (*Provider)(nil)
	_ wallet.Connector              = (*Provider)(nil)
	_ wallet.Disconnector           = (*Provider)(nil)
	_ wallet.TransactionSigner      = (*Provider)(nil)
	_ wallet.BatchTransactionSigner = (*Provider)(nil)
	_ wallet.TransactionSender      = (*Provider)(nil)
	_ wallet.SignAndSender          = (*Provider)(nil)
)

// Dial fetches the daemon manifest and returns a provider for it.
func Dial(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote wallet %s: base URL required", cfg.Name)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	p := &Provider{
		name:       cfg.Name,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		methods:    make(map[string]bool),
	}

	body, err := p.call(ctx, http.MethodGet, "/manifest", nil)
	if err != nil {
		return nil, fmt.Errorf("remote wallet %s manifest: %w", cfg.Name, err)
	}
	manifest := gjson.ParseBytes(body)
	for _, m := range manifest.Get("methods").Array() {
		p.methods[m.String()] = true
	}
	if len(p.methods) == 0 {
		return nil, fmt.Errorf("remote wallet %s manifest: no methods", cfg.Name)
	}
	if key := manifest.Get("publicKey").String(); key != "" {
		if pk, err := solana.PublicKeyFromBase58(key); err == nil {
			p.publicKey = pk
		}
	}
	return p, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

// Supports reports whether the daemon advertised method.
func (p *Provider) Supports(method string) bool { return p.methods[method] }

func (p *Provider) PublicKey() (solana.PublicKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publicKey, !p.publicKey.IsZero()
}

// Connect returns the key from the response, which may be a bare string or
// an object with a publicKey field.
func (p *Provider) Connect(ctx context.Context) (solana.PublicKey, error) {
	body, err := p.call(ctx, http.MethodPost, "/connect", struct{}{})
	if err != nil {
		return solana.PublicKey{}, err
	}
	raw := stringOrField(body, "publicKey")
	if raw == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode public key: %w", err)
	}
	p.mu.Lock()
	p.publicKey = key
	p.mu.Unlock()
	return key, nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	_, err := p.call(ctx, http.MethodPost, "/disconnect", struct{}{})
	p.mu.Lock()
	p.publicKey = solana.PublicKey{}
	p.mu.Unlock()
	return err
}

func (p *Provider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	encoded, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	body, err := p.call(ctx, http.MethodPost, "/signTransaction", map[string]any{"transaction": encoded})
	if err != nil {
		return nil, err
	}
	return decodeTransaction(gjson.GetBytes(body, "transaction").String())
}

func (p *Provider) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		e, err := encodeTransaction(tx)
		if err != nil {
			return nil, err
		}
		encoded[i] = e
	}
	body, err := p.call(ctx, http.MethodPost, "/signAllTransactions", map[string]any{"transactions": encoded})
	if err != nil {
		return nil, err
	}
	results := gjson.GetBytes(body, "transactions").Array()
	if len(results) != len(txs) {
		return nil, fmt.Errorf("signAllTransactions: got %d transactions, want %d", len(results), len(txs))
	}
	signed := make([]*solana.Transaction, len(results))
	for i, r := range results {
		tx, err := decodeTransaction(r.String())
		if err != nil {
			return nil, err
		}
		signed[i] = tx
	}
	return signed, nil
}

func (p *Provider) SendTransaction(ctx context.Context, tx *solana.Transaction, opts chain.SendOptions) (solana.Signature, error) {
	body, err := p.submit(ctx, "/sendTransaction", tx, opts)
	if err != nil {
		return solana.Signature{}, err
	}
	raw := stringOrField(body, "signature")
	if raw == "" {
		return solana.Signature{}, wallet.ErrMissingSignature
	}
	return solana.SignatureFromBase58(raw)
}

// SignAndSendTransaction returns the raw response body; the adapter
// normalizes its shape.
func (p *Provider) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, opts chain.SendOptions) (any, error) {
	body, err := p.submit(ctx, "/signAndSendTransaction", tx, opts)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (p *Provider) submit(ctx context.Context, path string, tx *solana.Transaction, opts chain.SendOptions) ([]byte, error) {
	encoded, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	return p.call(ctx, http.MethodPost, path, map[string]any{
		"transaction": encoded,
		"options": map[string]any{
			"skipPreflight":       opts.SkipPreflight,
			"preflightCommitment": string(opts.PreflightCommitment),
		},
	})
}

// =============================================================================
// Internal Methods
// =============================================================================

func (p *Provider) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		res := gjson.ParseBytes(body)
		msg := res.Get("message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if res.Get("code").Int() == userRejectedCode {
			return nil, fmt.Errorf("%s %s: %w: %s", p.name, path, wallet.ErrUserRejected, msg)
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", p.name, path, resp.StatusCode, msg)
	}
	return body, nil
}

func stringOrField(body []byte, field string) string {
	res := gjson.ParseBytes(body)
	if res.Type == gjson.String {
		return res.String()
	}
	return res.Get(field).String()
}

func encodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeTransaction(encoded string) (*solana.Transaction, error) {
	if encoded == "" {
		return nil, fmt.Errorf("response carried no transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
