package rewards

import (
	"strconv"

	"github.com/dripworks/dripper/internal/clients/assetindex"
)

// Ruleset holds the run-wide inputs of the reward computation. It is
// loaded once per run and read-only during processing.
type Ruleset struct {
	// Blocked accounts earn nothing.
	Blocked map[string]struct{}

	// ThrottleRate is the global dampening factor applied to throttled
	// templates.
	ThrottleRate float64
}

// Compute derives the reward row for one asset. The owner argument is the
// effective owner: the raw owner, or the resolved original depositor when
// the asset is custodially staked. Each step overrides the prior one; the
// ownership override can only force an already computed drip to zero.
func (r Ruleset) Compute(asset assetindex.AssetRecord, rate Rate, owner string) Reward {
	drip := rate.DripAmount
	if _, blocked := r.Blocked[owner]; blocked {
		drip = 0
	} else if owner == "" {
		drip = 0
	}

	if rate.Ownership {
		if recipient, ok := asset.RecipientOverride(); ok && recipient != owner {
			drip = 0
		}
	}

	bonus := 1.0
	if b, ok := rate.MintBonuses[strconv.FormatInt(asset.MintNumber, 10)]; ok {
		bonus = b
	}

	throttle := 1.0
	if rate.Throttle {
		throttle = r.ThrottleRate
	}

	gross := drip * bonus
	net := gross * throttle

	return Reward{
		AssetID:      asset.AssetID,
		Collection:   rate.Collection,
		TemplateID:   rate.TemplateID,
		Name:         asset.Name,
		Owner:        owner,
		MaxSupply:    asset.MaxSupply,
		IssuedSupply: asset.IssuedSupply,
		MintNumber:   asset.MintNumber,
		DripAmount:   drip,
		MintBonus:    bonus,
		Gross:        gross,
		Throttle:     throttle,
		Net:          net,
	}
}
