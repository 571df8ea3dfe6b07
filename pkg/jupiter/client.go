package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/flash-fill/pkg/flashfill"
	"github.com/code-payments/flash-fill/pkg/metrics"
	"github.com/code-payments/flash-fill/pkg/rate"
)

// Reference: https://station.jup.ag/docs/apis/swap-api

const (
	DefaultApiBaseUrl = "https://quote-api.jup.ag/v6/"

	quoteEndpointName            = "quote"
	swapInstructionsEndpointName = "swap-instructions"

	metricsStructName = "jupiter.client"
)

var (
	ErrRateLimited = errors.New("jupiter api rate limited")
)

type Client struct {
	log        *logrus.Entry
	baseUrl    string
	httpClient *http.Client
	limiter    rate.Limiter
}

// NewClient returns a new Jupiter client for fetching swap quotes and the
// instructions that execute them. A nil limiter disables rate limiting.
func NewClient(baseUrl string, limiter rate.Limiter) *Client {
	if !strings.HasSuffix(baseUrl, "/") {
		baseUrl += "/"
	}
	if limiter == nil {
		limiter = &rate.NoLimiter{}
	}

	return &Client{
		log:        logrus.StandardLogger().WithField("type", "jupiter/client"),
		baseUrl:    baseUrl,
		httpClient: http.DefaultClient,
		limiter:    limiter,
	}
}

type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps uint32

	// Optional route constraints
	OnlyDirectRoutes bool
	MaxAccounts      uint8
}

// Quote is an opaque route returned by the quote endpoint. It is passed back
// verbatim when requesting swap instructions.
type Quote struct {
	raw json.RawMessage

	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
}

// GetQuote gets an optimal route for performing a swap
func (c *Client) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetQuote")
	defer tracer.End()

	quote, err := func() (*Quote, error) {
		if req.Amount == 0 {
			return nil, errors.Wrap(flashfill.ErrQuoteUnavailable, "amount must be positive")
		}

		query := url.Values{}
		query.Set("inputMint", req.InputMint)
		query.Set("outputMint", req.OutputMint)
		query.Set("amount", strconv.FormatUint(req.Amount, 10))
		query.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
		if req.OnlyDirectRoutes {
			query.Set("onlyDirectRoutes", "true")
		}
		if req.MaxAccounts > 0 {
			query.Set("maxAccounts", strconv.Itoa(int(req.MaxAccounts)))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+quoteEndpointName+"?"+query.Encode(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "error creating http request")
		}

		respBody, err := c.do(quoteEndpointName, httpReq)
		if err != nil {
			return nil, errors.Wrap(flashfill.ErrQuoteUnavailable, err.Error())
		}

		var parsed jsonQuote
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, errors.Wrapf(flashfill.ErrQuoteUnavailable, "error unmarshalling json response: %s", err)
		}
		if len(parsed.Error) > 0 {
			return nil, errors.Wrap(flashfill.ErrQuoteUnavailable, parsed.Error)
		}

		quote := &Quote{
			raw: respBody,
		}
		for _, amount := range []struct {
			name  string
			value string
			out   *uint64
		}{
			{"inAmount", parsed.InAmount, &quote.InAmount},
			{"outAmount", parsed.OutAmount, &quote.OutAmount},
			{"otherAmountThreshold", parsed.OtherAmountThreshold, &quote.OtherAmountThreshold},
		} {
			*amount.out, err = strconv.ParseUint(amount.value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(flashfill.ErrQuoteUnavailable, "invalid %s: %q", amount.name, amount.value)
			}
		}
		return quote, nil
	}()
	tracer.OnError(err)
	return quote, err
}

// SwapInstructions are the instruction payloads needed to execute a quote.
// Setup and cleanup wrap the swap: typically a token account is created for
// the output mint and closed again afterwards.
type SwapInstructions struct {
	ComputeBudgetInstructions   []*flashfill.InstructionPayload
	SetupInstructions           []*flashfill.InstructionPayload
	SwapInstruction             *flashfill.InstructionPayload
	CleanupInstruction          *flashfill.InstructionPayload
	AddressLookupTableAddresses []string
}

// GetSwapInstructions gets the instructions to construct a transaction to sign
// and execute on chain to perform a swap with a given quote
func (c *Client) GetSwapInstructions(ctx context.Context, quote *Quote, owner string) (*SwapInstructions, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetSwapInstructions")
	defer tracer.End()

	res, err := func() (*SwapInstructions, error) {
		reqBody, err := json.Marshal(&jsonSwapInstructionsRequest{
			QuoteResponse: quote.raw,
			UserPublicKey: owner,
		})
		if err != nil {
			return nil, errors.Wrap(err, "error marshalling request")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+swapInstructionsEndpointName, bytes.NewReader(reqBody))
		if err != nil {
			return nil, errors.Wrap(err, "error creating http request")
		}
		httpReq.Header.Set("Content-Type", "application/json")

		respBody, err := c.do(swapInstructionsEndpointName, httpReq)
		if err != nil {
			return nil, errors.Wrap(flashfill.ErrInvalidSwapResponse, err.Error())
		}

		var jsonBody jsonSwapInstructions
		if err := json.Unmarshal(respBody, &jsonBody); err != nil {
			return nil, errors.Wrapf(flashfill.ErrInvalidSwapResponse, "error unmarshalling json response: %s", err)
		}

		if len(jsonBody.Error) > 0 {
			return nil, errors.Wrap(flashfill.ErrInvalidSwapResponse, jsonBody.Error)
		}
		if jsonBody.SwapInstruction == nil {
			return nil, errors.Wrap(flashfill.ErrInvalidSwapResponse, "swap instruction not provided")
		}
		for _, ixn := range jsonBody.ComputeBudgetInstructions {
			if ixn == nil {
				return nil, errors.Wrap(flashfill.ErrInvalidSwapResponse, "null compute budget instruction")
			}
		}
		for _, ixn := range jsonBody.SetupInstructions {
			if ixn == nil {
				return nil, errors.Wrap(flashfill.ErrInvalidSwapResponse, "null setup instruction")
			}
		}

		return &SwapInstructions{
			ComputeBudgetInstructions:   jsonBody.ComputeBudgetInstructions,
			SetupInstructions:           jsonBody.SetupInstructions,
			SwapInstruction:             jsonBody.SwapInstruction,
			CleanupInstruction:          jsonBody.CleanupInstruction,
			AddressLookupTableAddresses: jsonBody.AddressLookupTableAddresses,
		}, nil
	}()
	tracer.OnError(err)
	return res, err
}

func (c *Client) do(endpoint string, req *http.Request) ([]byte, error) {
	log := c.log.WithFields(logrus.Fields{
		"method":   "do",
		"endpoint": endpoint,
	})

	allowed, err := c.limiter.Allow(endpoint)
	if err != nil {
		log.WithError(err).Warn("failure checking rate limit")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "error executing http request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading response body")
	}

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Debug("unexpected http status")
		return nil, errors.Errorf("received http status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

type jsonQuote struct {
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	Error                string `json:"error"`
}

type jsonSwapInstructionsRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
}

type jsonSwapInstructions struct {
	ComputeBudgetInstructions   []*flashfill.InstructionPayload `json:"computeBudgetInstructions"`
	SetupInstructions           []*flashfill.InstructionPayload `json:"setupInstructions"`
	SwapInstruction             *flashfill.InstructionPayload   `json:"swapInstruction"`
	CleanupInstruction          *flashfill.InstructionPayload   `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string                        `json:"addressLookupTableAddresses"`
	Error                       string                          `json:"error"`
}
