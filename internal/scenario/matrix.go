package scenario

import (
	"fmt"

	"github.com/talgya/compute-market/internal/strategy"
)

// MatrixCell is the single handshake negotiation between a buyer and a
// seller strategy.
type MatrixCell struct {
	Buyer    string
	Seller   string
	Agreed   bool
	Price    float64 // agreed unit price, or the last standing price
	Messages int
	Reason   string
}

// Matrix runs the handshake scenario once for every buyer and seller
// strategy pairing, in registry order.
func Matrix(seed int64) ([]MatrixCell, error) {
	names := strategy.Names()
	cells := make([]MatrixCell, 0, len(names)*len(names))
	for _, buyer := range names {
		for _, seller := range names {
			cfg := handshake()
			cfg.Seed = seed
			cfg.Agents[0].Strategy = seller
			cfg.Agents[1].Strategy = buyer

			sim, err := Build(cfg)
			if err != nil {
				return nil, fmt.Errorf("%s buying from %s: %w", buyer, seller, err)
			}
			res, err := sim.Step()
			if err != nil {
				return nil, fmt.Errorf("%s buying from %s: %w", buyer, seller, err)
			}
			if len(res.Outcomes) != 1 {
				return nil, fmt.Errorf("%s buying from %s: %d negotiations", buyer, seller, len(res.Outcomes))
			}
			out := res.Outcomes[0]
			cells = append(cells, MatrixCell{
				Buyer:    buyer,
				Seller:   seller,
				Agreed:   out.Agreed(),
				Price:    out.Terms.UnitPrice,
				Messages: len(out.Messages),
				Reason:   out.Reason,
			})
		}
	}
	return cells, nil
}
