// Package assetindex is the client for the read-only NFT asset index API
// (AtomicAssets-compatible). Pages are 1-indexed with a fixed size; an
// empty page is the only end-of-stream signal.
package assetindex

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/pkg/httpclient"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/retry"
	"github.com/samber/lo"
)

const (
	// DefaultPageLimit is the fixed page size for asset queries.
	DefaultPageLimit = 100

	assetsPath    = "/atomicassets/v1/assets"
	marketPath    = "/atomicmarket/v1/assets"
	transfersPath = "/atomicassets/v1/transfers"
)

type Config struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	PageLimit int    `mapstructure:"page_limit"`
}

type Client struct {
	httpClient *httpclient.Client
	pageLimit  int
}

func New(config Config) (*Client, error) {
	httpClient, err := httpclient.New(config.BaseURL, httpclient.Config{
		Headers: map[string]string{"apikey": config.APIKey},
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't create http client")
	}
	return &Client{
		httpClient: httpClient,
		pageLimit:  utils.Default(config.PageLimit, DefaultPageLimit),
	}, nil
}

// PageLimit returns the fixed page size used by Assets and MarketAssets.
func (c *Client) PageLimit() int {
	return c.pageLimit
}

type AssetsQuery struct {
	Collection string
	TemplateID int64
	Page       int
	Descending bool

	// Limit overrides the client page limit when > 0.
	Limit int
}

func (q AssetsQuery) values(pageLimit int) url.Values {
	query := url.Values{}
	if q.Collection != "" {
		query.Set("collection_name", q.Collection)
	}
	if q.TemplateID != 0 {
		query.Set("template_id", strconv.FormatInt(q.TemplateID, 10))
	}
	limit := pageLimit
	if q.Limit > 0 {
		limit = q.Limit
	}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("order", lo.Ternary(q.Descending, "desc", "asc"))
	query.Set("sort", "asset_id")
	return query
}

// Assets fetches one page of asset records. A zero-length result marks
// the end of the stream.
func (c *Client) Assets(ctx context.Context, query AssetsQuery) ([]AssetRecord, error) {
	return c.fetchAssets(ctx, assetsPath, query)
}

// MarketAssets is Assets against the market-annotated endpoint, which
// additionally carries each asset's open sales.
func (c *Client) MarketAssets(ctx context.Context, query AssetsQuery) ([]AssetRecord, error) {
	return c.fetchAssets(ctx, marketPath, query)
}

func (c *Client) fetchAssets(ctx context.Context, path string, query AssetsQuery) ([]AssetRecord, error) {
	var envelope struct {
		Data []assetPayload `json:"data"`
	}
	err := retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Get(ctx, path, httpclient.RequestOptions{Query: query.values(c.pageLimit)})
		if err != nil {
			return errors.WithStack(err)
		}
		if err := resp.StatusError(); err != nil {
			return errors.WithStack(err)
		}
		envelope.Data = envelope.Data[:0]
		return errors.WithStack(resp.UnmarshalBody(&envelope))
	})
	if err != nil {
		return nil, errors.Wrapf(errs.TransientIO, "can't fetch assets page %d: %v", query.Page, err)
	}

	records := make([]AssetRecord, 0, len(envelope.Data))
	for _, payload := range envelope.Data {
		record, err := payload.toRecord()
		if err != nil {
			// Malformed rows are dropped at the boundary instead of
			// failing the page.
			logger.WarnContext(ctx, "dropping malformed asset record", slog.String("asset_id", payload.AssetID))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// LastSender resolves the most recent transfer sender for an asset. It is
// used to find the original depositor of custodially staked assets.
func (c *Client) LastSender(ctx context.Context, assetID uint64) (string, error) {
	query := url.Values{}
	query.Set("asset_id", strconv.FormatUint(assetID, 10))
	query.Set("page", "1")
	query.Set("limit", "100")
	query.Set("order", "desc")

	var envelope struct {
		Data []struct {
			SenderName string `json:"sender_name"`
		} `json:"data"`
	}
	err := retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
		resp, err := c.httpClient.Get(ctx, transfersPath, httpclient.RequestOptions{Query: query})
		if err != nil {
			return errors.WithStack(err)
		}
		if err := resp.StatusError(); err != nil {
			return errors.WithStack(err)
		}
		envelope.Data = envelope.Data[:0]
		return errors.WithStack(resp.UnmarshalBody(&envelope))
	})
	if err != nil {
		return "", errors.Wrapf(errs.SenderLookup, "can't fetch transfers of asset %d: %v", assetID, err)
	}
	if len(envelope.Data) == 0 || envelope.Data[0].SenderName == "" {
		return "", errors.Wrapf(errs.SenderLookup, "asset %d has no transfer history", assetID)
	}
	return envelope.Data[0].SenderName, nil
}
