package cmd

import (
	"github.com/dripworks/dripper/core/batch"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/modules/tickets"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewTicketsCommand() *cobra.Command {
	return newJobCommand("tickets", "Mint weighted-random tickets for pass holders", tickets.JobName,
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
			return tickets.New(tickets.Config{
				BatchLimit:    conf.Tickets.BatchLimit,
				Collection:    conf.Tickets.Collection,
				Schema:        conf.Tickets.Schema,
				TemplateID:    conf.Tickets.TemplateID,
				SkipAssets:    conf.Tickets.SkipAssets,
				Choices:       conf.Tickets.Choices,
				Account:       chainClient.Account(),
				Authorization: chainClient.Authorization(),
			}, assets, st, submitter, alerts), nil
		})
}
