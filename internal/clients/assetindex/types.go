package assetindex

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
)

// AssetRecord is one NFT instance as observed by the asset index,
// validated at the fetch boundary.
type AssetRecord struct {
	AssetID      uint64
	Owner        string // empty when the asset is burnt or unowned
	Collection   string
	TemplateID   int64
	MintNumber   int64
	Name         string
	MaxSupply    int64
	IssuedSupply int64
	MutableData  map[string]string
	Sales        int
}

// Burnt reports whether the asset currently has no owner.
func (a AssetRecord) Burnt() bool {
	return a.Owner == ""
}

// RecipientOverride returns the recipient recorded in the asset's mutable
// "data" payload, if any. The payload is a JSON-encoded array of
// {"recipient": ...} objects stored as a string value.
func (a AssetRecord) RecipientOverride() (string, bool) {
	raw, ok := a.MutableData["data"]
	if !ok || raw == "" {
		return "", false
	}
	var entries []struct {
		Recipient string `json:"recipient"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil || len(entries) == 0 {
		return "", false
	}
	return entries[0].Recipient, true
}

// wire format of the asset index API; numeric fields arrive as strings.
type assetPayload struct {
	AssetID    string  `json:"asset_id"`
	Owner      *string `json:"owner"`
	Collection struct {
		CollectionName string `json:"collection_name"`
	} `json:"collection"`
	Template struct {
		TemplateID   string `json:"template_id"`
		MaxSupply    string `json:"max_supply"`
		IssuedSupply string `json:"issued_supply"`
	} `json:"template"`
	TemplateMint string `json:"template_mint"`
	Data         struct {
		Name string `json:"name"`
	} `json:"data"`
	MutableData map[string]any `json:"mutable_data"`
	Sales       []struct {
		SaleID string `json:"sale_id"`
	} `json:"sales"`
}

func (p assetPayload) toRecord() (AssetRecord, error) {
	if p.AssetID == "" {
		return AssetRecord{}, errors.Wrap(errs.InvalidArgument, "asset record is missing asset_id")
	}
	assetID, err := strconv.ParseUint(p.AssetID, 10, 64)
	if err != nil {
		return AssetRecord{}, errors.Wrapf(errs.InvalidArgument, "malformed asset_id %q", p.AssetID)
	}

	record := AssetRecord{
		AssetID:     assetID,
		Collection:  p.Collection.CollectionName,
		Name:        p.Data.Name,
		MutableData: make(map[string]string, len(p.MutableData)),
		Sales:       len(p.Sales),
	}
	if p.Owner != nil {
		record.Owner = *p.Owner
	}
	record.TemplateID = parseInt(p.Template.TemplateID)
	record.MintNumber = parseInt(p.TemplateMint)
	record.MaxSupply = parseInt(p.Template.MaxSupply)
	record.IssuedSupply = parseInt(p.Template.IssuedSupply)
	for k, v := range p.MutableData {
		if s, ok := v.(string); ok {
			record.MutableData[k] = s
		}
	}
	return record, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
