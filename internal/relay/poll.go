package relay

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/url"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ldclabs/1paying/internal/errs"
)

// envelope is the relay's outer response shape.
type envelope struct {
	Result cbor.RawMessage `cbor:"result"`
}

// resultMeta carries the relay bookkeeping fields present in every
// response, plus the wallet's explicit error, if any.
type resultMeta struct {
	UpdatedAt    int64  `cbor:"_updatedAt,omitempty"`
	ExpiresAt    int64  `cbor:"_expiresAt,omitempty"`
	ErrorCode    string `cbor:"errorCode,omitempty"`
	ErrorMessage string `cbor:"errorMessage,omitempty"`
}

// keepalive is the signed state-initialization message. The signature is
// ed25519 over the deterministic CBOR encoding of the timestamp-only form.
type keepalive struct {
	Timestamp int64  `cbor:"timestamp"`
	Signature []byte `cbor:"signature,omitempty"`
}

var detEnc cbor.EncMode

func init() {
	var err error
	detEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// call opens the wallet deep link for method, then polls the relay for
// the wallet's asynchronous response. It returns when the response
// arrives, the wallet reports an explicit error, the overall timeout
// window elapses, or ctx is cancelled.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("dapp_encryption_public_key", c.exchangePubkey())
	params.Set("redirect_link", fmt.Sprintf("%s/%s/%s", c.cfg.CallbackURL, c.routeID, method))

	deepLink := fmt.Sprintf("%s/%s?%s", c.cfg.WalletURL, method, params.Encode())
	if err := c.cfg.OpenURL(deepLink); err != nil {
		return fmt.Errorf("failed to open wallet deep link: %w", err)
	}

	if err := c.tryInitState(ctx); err != nil {
		return err
	}

	start := time.Now()
	// Initial settle delay so the wallet app can start processing.
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}

	attempt := 0
	for {
		attempt++

		err := c.poll(ctx, method, out)
		if err == nil {
			c.cfg.Logger.Debug("relay poll succeeded", map[string]any{
				"method": method, "attempt": attempt,
			})
			return nil
		}
		if errs.Is(err, errs.KindRelay) {
			// Explicit error payloads are never retried.
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > c.cfg.Timeout {
			return errs.New(errs.KindTimeout, "timeout waiting for wallet response to %s", method)
		}

		c.cfg.Logger.Debug("relay poll not ready", map[string]any{
			"method": method, "attempt": attempt, "error": err.Error(),
		})
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// poll performs one relay fetch. Transport and decode failures mean "not
// ready yet"; only an embedded error payload is fatal.
func (c *Client) poll(ctx context.Context, method string, out any) error {
	var env envelope
	if err := c.cfg.HTTP.GetCBOR(ctx, fmt.Sprintf("%s/%s/%s", c.cfg.RelayURL, c.routeID, method), &env); err != nil {
		return err
	}
	if env.Result == nil {
		return fmt.Errorf("relay response missing result")
	}

	var meta resultMeta
	if err := cbor.Unmarshal(env.Result, &meta); err != nil {
		return fmt.Errorf("failed to decode relay result: %w", err)
	}
	if meta.ErrorCode != "" || meta.ErrorMessage != "" {
		return errs.New(errs.KindRelay, "phantom deeplink %s error: %s %s", method, meta.ErrorCode, meta.ErrorMessage)
	}

	if out != nil {
		if err := cbor.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode relay result: %w", err)
		}
	}

	c.mu.Lock()
	if meta.ExpiresAt > 0 {
		c.stateExpiresAt = meta.ExpiresAt
	}
	c.mu.Unlock()
	return nil
}

// tryInitState refreshes the short-lived server-side holding record
// before an interactive call, since the wallet's response can arrive
// well after the initial request. Signed with the client's fixed key.
func (c *Client) tryInitState(ctx context.Context) error {
	now := time.Now().UnixMilli()
	c.mu.Lock()
	fresh := c.stateExpiresAt >= now+stateRefreshWindow.Milliseconds()
	c.mu.Unlock()
	if fresh {
		return nil
	}

	msg := keepalive{Timestamp: now}
	unsigned, err := detEnc.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode keepalive: %w", err)
	}
	msg.Signature = ed25519.Sign(c.keys.signKey, unsigned)

	var resp struct {
		Result resultMeta `cbor:"result"`
	}
	if err := c.cfg.HTTP.PostCBOR(ctx, fmt.Sprintf("%s/%s", c.cfg.RelayURL, c.routeID), msg, &resp); err != nil {
		return errs.Wrap(errs.KindRemoteCall, err, "failed to init relay state")
	}

	c.mu.Lock()
	c.stateExpiresAt = resp.Result.ExpiresAt
	c.mu.Unlock()
	return nil
}

func (c *Client) exchangePubkey() string {
	return base58EncodeKey(c.keys.exchPub)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
