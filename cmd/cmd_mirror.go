package cmd

import (
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/internal/config"
	"github.com/dripworks/dripper/modules/mirror"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func NewMirrorCommand() *cobra.Command {
	return newJobCommand("mirror", "Mirror template ownership into the off-chain store", mirror.JobName,
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
			return mirror.New(mirror.Config{
				TemplateID: conf.Mirror.TemplateID,
				Table:      conf.Mirror.Table,
			}, assets, st, alerts), nil
		})
}
