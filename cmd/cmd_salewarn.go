package cmd

import (
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/modules/salewarn"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewSalewarnCommand() *cobra.Command {
	return newJobCommand("salewarn", "Swap listed assets to their warning image", salewarn.JobName,
		func(i do.Injector) (runner, error) {
			assets, err := do.Invoke[*assetindex.Client](i)
			if err != nil {
				return nil, err
			}
			st, err := do.Invoke[*store.Client](i)
			if err != nil {
				return nil, err
			}
			chainClient, err := do.Invoke[*chain.Client](i)
			if err != nil {
				return nil, err
			}
			submitter, err := do.Invoke[*batch.Submitter](i)
			if err != nil {
				return nil, err
			}
			alerts, err := do.Invoke[notifier](i)
			if err != nil {
				return nil, err
			}
			return salewarn.New(salewarn.Config{
				Account:       chainClient.Account(),
				Authorization: chainClient.Authorization(),
			}, assets, st, submitter, alerts), nil
		})
}
