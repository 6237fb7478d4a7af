// Package store is the client for the PostgREST-style off-chain store:
// table reads, merge-duplicates upserts, bulk deletes and paginated
// stored-procedure calls.
package store

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/pkg/httpclient"
	"github.com/dripworks/dripper/pkg/retry"
)

// rpcPageLimit is the fixed page size for stored-procedure pagination.
const rpcPageLimit = 1000

type Config struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type Client struct {
	httpClient *httpclient.Client
}

func New(config Config) (*Client, error) {
	httpClient, err := httpclient.New(config.BaseURL, httpclient.Config{
		Headers: map[string]string{
			"apikey":        config.APIKey,
			"Authorization": "Bearer " + config.APIKey,
			"Prefer":        "resolution=merge-duplicates",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't create http client")
	}
	return &Client{httpClient: httpClient}, nil
}

// Select reads all rows of a table into out. An optional order clause
// uses PostgREST syntax, e.g. "collection.asc,template_id.asc".
func (c *Client) Select(ctx context.Context, table, order string, out any) error {
	query := url.Values{}
	query.Set("select", "*")
	if order != "" {
		query.Set("order", order)
	}
	err := retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Get(ctx, table, httpclient.RequestOptions{Query: query})
		if err != nil {
			return errors.WithStack(err)
		}
		if err := resp.StatusError(); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(resp.UnmarshalBody(out))
	})
	if err != nil {
		return errors.Wrapf(errs.TransientIO, "can't select from %q: %v", table, err)
	}
	return nil
}

// Upsert writes rows with merge-duplicates semantics.
func (c *Client) Upsert(ctx context.Context, table string, rows any) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrapf(err, "can't marshal rows for %q", table)
	}
	err = retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Post(ctx, table, httpclient.RequestOptions{Body: body})
		if err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(resp.StatusError())
	})
	if err != nil {
		return errors.Wrapf(errs.TransientIO, "can't upsert into %q: %v", table, err)
	}
	return nil
}

// DeleteEq bulk-deletes every row whose column equals value.
func (c *Client) DeleteEq(ctx context.Context, table, column, value string) error {
	query := url.Values{}
	query.Set(column, "eq."+value)
	err := retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Delete(ctx, table, httpclient.RequestOptions{Query: query})
		if err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(resp.StatusError())
	})
	if err != nil {
		return errors.Wrapf(errs.TransientIO, "can't delete from %q where %s=%s: %v", table, column, value, err)
	}
	return nil
}

// RPC invokes a stored procedure with the given params and unmarshals the
// result into out. Pass nil out to discard the result.
func (c *Client) RPC(ctx context.Context, fn string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return errors.Wrapf(err, "can't marshal params for rpc %q", fn)
	}
	err = retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Post(ctx, "/rpc/"+fn, httpclient.RequestOptions{Body: body})
		if err != nil {
			return errors.WithStack(err)
		}
		if err := resp.StatusError(); err != nil {
			return errors.WithStack(err)
		}
		if out == nil {
			return nil
		}
		return errors.WithStack(resp.UnmarshalBody(out))
	})
	if err != nil {
		return errors.Wrapf(errs.TransientIO, "can't call rpc %q: %v", fn, err)
	}
	return nil
}

// RPCCaller is the subset of Client used by RPCAll.
type RPCCaller interface {
	RPC(ctx context.Context, fn string, params, out any) error
}

// RPCAll drains a paginated stored procedure, advancing a {lim, off}
// window until the first empty page.
func RPCAll[T any](ctx context.Context, c RPCCaller, fn string) ([]T, error) {
	var out []T
	for off := 0; ; off += rpcPageLimit {
		params := map[string]any{"lim": rpcPageLimit, "off": off}
		var page []T
		if err := c.RPC(ctx, fn, params, &page); err != nil {
			return nil, errors.WithStack(err)
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
	}
}
