package rewards

// Rate is one reward policy row, keyed by (collection, template).
type Rate struct {
	Collection string  `json:"collection"`
	TemplateID int64   `json:"template_id"`
	DripAmount float64 `json:"drip_amount"`

	// Ownership gates the reward on the asset's recipient override
	// matching its current owner.
	Ownership bool `json:"ownership"`

	// Throttle applies the global throttle rate to this template.
	Throttle bool `json:"throttle"`

	// MintBonuses maps mint number (as the store serializes it, a string
	// key) to a drip multiplier.
	MintBonuses map[string]float64 `json:"mint_bonuses"`
}

// BlockEntry is one blocked account. The store column is historically
// named "collection" but holds an account name.
type BlockEntry struct {
	Account string `json:"collection"`
}

// ConfigEntry is one key-value row of the job configuration table.
type ConfigEntry struct {
	Config string `json:"config"`
	Value  string `json:"value"`
}

// TemplateEntry is one row of the live template list.
type TemplateEntry struct {
	TemplateID int64 `json:"template_id"`
}

// Reward is one computed per-asset reward row, upserted into the asset
// mirror.
type Reward struct {
	AssetID      uint64  `json:"asset_id"`
	Collection   string  `json:"collection"`
	TemplateID   int64   `json:"template_id"`
	Name         string  `json:"name"`
	Owner        string  `json:"owner"`
	MaxSupply    int64   `json:"max_supply"`
	IssuedSupply int64   `json:"issued_supply"`
	MintNumber   int64   `json:"mint_number"`
	DripAmount   float64 `json:"drip_amount"`
	MintBonus    float64 `json:"mint_number_bonus"`
	Gross        float64 `json:"gross_drip_amount"`
	Throttle     float64 `json:"throttle_tax_reducer"`
	Net          float64 `json:"net_drip_amount"`
}
