// Package relay implements the Phantom deep-link client: an encrypted
// channel to a wallet application reachable only by opening a URL and
// polling a server-mediated relay for the asynchronous response.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/ldclabs/1paying/internal/client"
	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/logging"
)

// Defaults for the production Phantom relay.
const (
	DefaultAppURL      = "https://1pay.ing"
	DefaultWalletURL   = "https://phantom.app/ul/v1"
	DefaultRelayURL    = "https://api.1pay.ing/phantom"
	DefaultCallbackURL = "https://1pay.ing/callback/phantom"
	DefaultCluster     = "mainnet-beta"

	defaultSettleDelay  = 3 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 3 * time.Minute

	// stateRefreshWindow: the server-side holding record is refreshed
	// whenever it would expire within one full poll budget.
	stateRefreshWindow = 3 * time.Minute
)

// Config configures a relay Client. Zero values take production defaults.
type Config struct {
	Cluster     string
	AppURL      string
	WalletURL   string
	RelayURL    string
	CallbackURL string

	SettleDelay  time.Duration
	PollInterval time.Duration
	Timeout      time.Duration

	HTTP   *client.Client
	Logger logging.Logger

	// OpenURL delivers the deep link to the wallet application, e.g. by
	// launching a browser. Required.
	OpenURL func(url string) error
}

func (cfg *Config) withDefaults() {
	if cfg.Cluster == "" {
		cfg.Cluster = DefaultCluster
	}
	if cfg.AppURL == "" {
		cfg.AppURL = DefaultAppURL
	}
	if cfg.WalletURL == "" {
		cfg.WalletURL = DefaultWalletURL
	}
	if cfg.RelayURL == "" {
		cfg.RelayURL = DefaultRelayURL
	}
	if cfg.CallbackURL == "" {
		cfg.CallbackURL = DefaultCallbackURL
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTP == nil {
		cfg.HTTP = client.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
}

// State is the round-trip serializable form of a connected relay
// session. Restoring it re-derives the shared secret without a new
// handshake.
type State struct {
	Cluster string `json:"cluster"`
	// Secret is the raw 32-byte session secret both keypairs derive from.
	Secret []byte `json:"secret"`
	// PhantomPubkey is the wallet's X25519 exchange public key, base58.
	PhantomPubkey string `json:"phantomXpubkey"`
	// Session is the token the wallet returned on connect.
	Session string `json:"session"`
	// Address is the bound Solana address.
	Address string `json:"svmAddress"`
}

// Client is the deep-link relay client. One instance represents one
// relay session; replace it wholesale on logout.
type Client struct {
	cfg  Config
	keys *keys
	// routeID keys every relay round-trip so the server can route the
	// wallet's asynchronous response back to this client's poll loop.
	routeID string

	mu             sync.Mutex
	shared         *[32]byte
	phantomPubkey  string
	session        string
	address        string
	stateExpiresAt int64 // ms, server-held holding-record expiry
}

// New creates a fresh relay client with a random session secret.
func New(cfg Config) (*Client, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	return NewFromSecret(cfg, secret)
}

// NewFromSecret creates a relay client from a fixed 32-byte secret.
func NewFromSecret(cfg Config, secret []byte) (*Client, error) {
	cfg.withDefaults()
	if cfg.OpenURL == nil {
		return nil, errs.New(errs.KindPrecondition, "OpenURL is required")
	}

	k, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		keys:    k,
		routeID: base64.RawURLEncoding.EncodeToString(k.signPub),
	}, nil
}

// Restore rebuilds a client from persisted state. The shared secret is
// re-derived deterministically from the exchange keys; no handshake runs.
// A state without the wallet exchange key restores unconnected.
func Restore(cfg Config, st State) (*Client, error) {
	c, err := NewFromSecret(cfg, st.Secret)
	if err != nil {
		return nil, err
	}
	if st.Cluster != "" {
		c.cfg.Cluster = st.Cluster
	}

	c.session = st.Session
	c.address = st.Address
	if st.PhantomPubkey != "" {
		shared, err := c.keys.sharedSecret(st.PhantomPubkey)
		if err != nil {
			return nil, err
		}
		c.phantomPubkey = st.PhantomPubkey
		c.shared = shared
	}
	return c, nil
}

// State exports the fields needed to resume this session later.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Cluster:       c.cfg.Cluster,
		Secret:        append([]byte(nil), c.keys.secret...),
		PhantomPubkey: c.phantomPubkey,
		Session:       c.session,
		Address:       c.address,
	}
}

// Address returns the bound Solana address, or "" before connect.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Connected reports whether the shared secret is established, the
// session token is set, and an address is bound. All three are required.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Client) connectedLocked() bool {
	return c.shared != nil && c.session != "" && c.address != ""
}

// connectResult is the wallet's response to a connect deep link.
type connectResult struct {
	PhantomEncryptionPublicKey string `cbor:"phantom_encryption_public_key"`
	Nonce                      string `cbor:"nonce"`
	Data                       string `cbor:"data"`
}

// connectPayload is the decrypted body of a connect response.
type connectPayload struct {
	PublicKey string `json:"public_key"`
	Session   string `json:"session"`
}

// Connect performs the key exchange with the wallet. Calling Connect on
// an already-connected client is a no-op with no network interaction.
func (c *Client) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	params := url.Values{}
	params.Set("app_url", c.cfg.AppURL)
	params.Set("cluster", c.cfg.Cluster)

	var result connectResult
	if err := c.call(ctx, "connect", params, &result); err != nil {
		return err
	}

	// Derive the shared secret once; nothing is committed until the
	// response decrypts, so a failed connect leaves no partial state.
	shared, err := c.keys.sharedSecret(result.PhantomEncryptionPublicKey)
	if err != nil {
		return errs.Wrap(errs.KindRelay, err, "connect returned a bad exchange key")
	}

	plaintext, err := openBase58(shared, result.Data, result.Nonce)
	if err != nil {
		return errs.Wrap(errs.KindRelay, err, "failed to decrypt connect response")
	}
	var payload connectPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return errs.Wrap(errs.KindRelay, err, "malformed connect response")
	}
	if payload.PublicKey == "" || payload.Session == "" {
		return errs.New(errs.KindRelay, "connect response missing session or address")
	}

	c.mu.Lock()
	c.shared = shared
	c.phantomPubkey = result.PhantomEncryptionPublicKey
	c.session = payload.Session
	c.address = payload.PublicKey
	c.mu.Unlock()

	c.cfg.Logger.Info("phantom deeplink connected", map[string]any{
		"address": payload.PublicKey,
		"cluster": c.cfg.Cluster,
	})
	return nil
}

// signedResult is the encrypted response envelope of signing calls.
type signedResult struct {
	Nonce string `cbor:"nonce"`
	Data  string `cbor:"data"`
}

// SignMessage asks the wallet to sign an arbitrary message. Returns the
// raw signature and the address that signed. Requires a connected client.
func (c *Client) SignMessage(ctx context.Context, message []byte) ([]byte, string, error) {
	c.mu.Lock()
	if !c.connectedLocked() {
		c.mu.Unlock()
		return nil, "", errs.New(errs.KindPrecondition, "deeplink wallet is not connected")
	}
	shared, session, address := c.shared, c.session, c.address
	c.mu.Unlock()

	request, err := json.Marshal(map[string]string{
		"message": base58.Encode(message),
		"session": session,
	})
	if err != nil {
		return nil, "", err
	}

	var result signedResult
	if err := c.interactive(ctx, "signMessage", shared, request, &result); err != nil {
		return nil, "", err
	}

	plaintext, err := openBase58(shared, result.Data, result.Nonce)
	if err != nil {
		return nil, "", errs.Wrap(errs.KindRelay, err, "failed to decrypt signMessage response")
	}
	var payload struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, "", errs.Wrap(errs.KindRelay, err, "malformed signMessage response")
	}
	sig, err := base58.Decode(payload.Signature)
	if err != nil {
		return nil, "", errs.Wrap(errs.KindRelay, err, "invalid signature encoding")
	}

	return sig, address, nil
}

// SignTransaction submits a serialized, not-yet-fully-signed transaction
// for wallet signing and returns the wallet-signed transaction.
func (c *Client) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	c.mu.Lock()
	if !c.connectedLocked() {
		c.mu.Unlock()
		return nil, errs.New(errs.KindPrecondition, "deeplink wallet is not connected")
	}
	shared, session := c.shared, c.session
	c.mu.Unlock()

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	request, err := json.Marshal(map[string]string{
		"transaction": base58.Encode(raw),
		"session":     session,
	})
	if err != nil {
		return nil, err
	}

	var result signedResult
	if err := c.interactive(ctx, "signTransaction", shared, request, &result); err != nil {
		return nil, err
	}

	plaintext, err := openBase58(shared, result.Data, result.Nonce)
	if err != nil {
		return nil, errs.Wrap(errs.KindRelay, err, "failed to decrypt signTransaction response")
	}
	var payload struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, errs.Wrap(errs.KindRelay, err, "malformed signTransaction response")
	}

	signedBytes, err := base58.Decode(payload.Transaction)
	if err != nil {
		return nil, errs.Wrap(errs.KindRelay, err, "invalid transaction encoding")
	}
	signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signedBytes))
	if err != nil {
		return nil, errs.Wrap(errs.KindRelay, err, "failed to decode signed transaction")
	}
	return signed, nil
}

// interactive encrypts a request payload under the shared secret with a
// fresh nonce and performs the open-URL + poll round-trip.
func (c *Client) interactive(ctx context.Context, method string, shared *[32]byte, request []byte, out any) error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	sealed, err := sealBase58(shared, request, nonce)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("nonce", base58.Encode(nonce[:]))
	params.Set("payload", sealed)
	return c.call(ctx, method, params, out)
}
