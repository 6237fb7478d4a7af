// Package chain is the client for the chain RPC endpoint. A batch of
// actions is submitted as one atomic transaction; signing and wire
// encoding happen behind the RPC gateway, which receives the forwarded
// credentials.
package chain

import (
	"context"
	"encoding/json"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/pkg/httpclient"
)

const pushTransactionPath = "/v1/chain/push_transaction"

type Authorization struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action is one operation inside a transaction.
type Action struct {
	Account       string          `json:"account"`
	Name          string          `json:"name"`
	Authorization []Authorization `json:"authorization"`
	Data          any             `json:"data"`
}

type Config struct {
	RPCURL     string `mapstructure:"rpc_url"`
	APIKey     string `mapstructure:"api_key"`
	Account    string `mapstructure:"account"`
	Permission string `mapstructure:"permission"`
	PrivateKey string `mapstructure:"private_key"`
}

type Client struct {
	httpClient *httpclient.Client
	account    string
	permission string
}

func New(config Config) (*Client, error) {
	if config.Account == "" {
		return nil, errors.New("chain.account config is required")
	}
	permission := utils.Default(config.Permission, "active")
	httpClient, err := httpclient.New(config.RPCURL, httpclient.Config{
		Headers: map[string]string{
			"apikey":        config.APIKey,
			"x-signing-key": config.PrivateKey,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't create http client")
	}
	return &Client{
		httpClient: httpClient,
		account:    config.Account,
		permission: permission,
	}, nil
}

// Account returns the submitting account name.
func (c *Client) Account() string {
	return c.account
}

// Authorization returns the authorization entry for the submitting
// account.
func (c *Client) Authorization() []Authorization {
	return []Authorization{{Actor: c.account, Permission: c.permission}}
}

// PushTransaction submits the actions as one atomic transaction and
// returns the transaction id. One call is one attempt; retries are the
// submitter's concern.
func (c *Client) PushTransaction(ctx context.Context, actions []Action) (string, error) {
	body, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return "", errors.Wrap(err, "can't marshal transaction")
	}

	resp, err := c.httpClient.Post(ctx, pushTransactionPath, httpclient.RequestOptions{Body: body})
	if err != nil {
		return "", errors.Wrap(err, "can't push transaction")
	}
	if resp.StatusCode() >= 400 {
		return "", errors.Errorf("transaction rejected: %s", rejectionMessage(resp.Body()))
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := resp.UnmarshalBody(&result); err != nil {
		return "", errors.WithStack(err)
	}
	if result.TransactionID == "" {
		return "", errors.New("push_transaction response carries no transaction_id")
	}
	return result.TransactionID, nil
}

// rejectionMessage digs the human-readable detail out of a chain error
// body, falling back to the raw body.
func rejectionMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Details []struct {
				Message string `json:"message"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Error.Details) > 0 && parsed.Error.Details[0].Message != "" {
		return parsed.Error.Details[0].Message
	}
	return string(body)
}
