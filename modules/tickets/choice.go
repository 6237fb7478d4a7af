package tickets

import (
	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/internal/config"
	wr "github.com/mroth/weightedrand/v2"
	"github.com/samber/lo"
)

// picker draws ticket templates with configured weights.
type picker struct {
	chooser *wr.Chooser[int64, int]
	names   map[int64]string
}

func newPicker(choices []config.TicketChoice) (*picker, error) {
	if len(choices) == 0 {
		return nil, errors.New("no ticket choices configured")
	}
	chooser, err := wr.NewChooser(lo.Map(choices, func(c config.TicketChoice, _ int) wr.Choice[int64, int] {
		return wr.NewChoice(c.TemplateID, c.Weight)
	})...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ticket weights")
	}
	return &picker{
		chooser: chooser,
		names:   lo.SliceToMap(choices, func(c config.TicketChoice) (int64, string) { return c.TemplateID, c.Name }),
	}, nil
}

func (p *picker) Pick() (templateID int64, name string) {
	templateID = p.chooser.Pick()
	return templateID, p.names[templateID]
}
