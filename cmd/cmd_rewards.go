package cmd

import (
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/modules/rewards"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewRewardsCommand() *cobra.Command {
	return newJobCommand("rewards", "Recompute per-asset drip rewards", rewards.JobName,
		func(i do.Injector) (runner, error) {
			conf, err := do.Invoke[config.Config](i)
			if err != nil {
				return nil, err
			}
			assets, err := do.Invoke[*assetindex.Client](i)
			if err != nil {
				return nil, err
			}
			st, err := do.Invoke[*store.Client](i)
			if err != nil {
				return nil, err
			}
			alerts, err := do.Invoke[notifier](i)
			if err != nil {
				return nil, err
			}
			return rewards.New(assets, st, alerts, conf.Rewards.CustodialAccounts), nil
		})
}
