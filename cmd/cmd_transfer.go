package cmd

import (
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/modules/transfer"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewTransferCommand() *cobra.Command {
	return newJobCommand("transfer", "Pay out accumulated drip balances", transfer.JobName,
		func(i do.Injector) (runner, error) {
			conf, err := do.Invoke[config.Config](i)
			if err != nil {
				return nil, err
			}
			st, err := do.Invoke[*store.Client](i)
			if err != nil {
				return nil, err
			}
			distStore, err := do.InvokeNamed[*store.Client](i, distStoreName)
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
			return transfer.New(transfer.Config{
				BatchLimit:     conf.Transfer.BatchLimit,
				SkipAccounts:   conf.Transfer.SkipAccounts,
				Account:        chainClient.Account(),
				Authorization:  chainClient.Authorization(),
				TokenContract:  conf.Token.Contract,
				TokenSymbol:    conf.Token.Symbol,
				TokenPrecision: conf.Token.Precision,
			}, st, distStore, submitter, alerts), nil
		})
}
