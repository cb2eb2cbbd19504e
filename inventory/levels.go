/*
levels.go - Stock level calculation

PURPOSE:
  Derives current quantities from the ledger and decorates them with the
  master data a caller needs to act on them (names, SKU, unit of measure,
  reorder threshold).

PRESENCE RULE:
  A pair with zero movements has no StockLevel row. A pair whose movements
  sum to zero does have one, with Quantity 0.

REORDER RULE:
  BelowReorder is set when Quantity <= the item's ReorderLevel, so an item
  with reorder level 10 and 10 on hand is flagged.

SEE ALSO:
  - ledger.go: CurrentQuantity for a single pair
  - jobs/scanner.go: Periodic reorder scan built on StockLevels
*/
package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// SumByKey groups movements into per-pair totals. Stores that cannot
// aggregate exact decimals in their query language use it after loading.
func SumByKey(ms []Movement, filter LevelFilter) []StockTotal {
	sums := make(map[StockKey]decimal.Decimal)
	for _, m := range ms {
		if filter.ItemID != nil && m.ItemID != *filter.ItemID {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		sums[m.Key()] = sums[m.Key()].Add(m.Quantity)
	}

	totals := make([]StockTotal, 0, len(sums))
	for k, q := range sums {
		totals = append(totals, StockTotal{Key: k, Quantity: q})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Key.Less(totals[j].Key) })
	return totals
}

func (l *DefaultLedger) StockLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error) {
	totals, err := l.Store.Totals(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make(map[ItemID]*Item)
	locations := make(map[LocationID]*Location)

	levels := make([]StockLevel, 0, len(totals))
	for _, t := range totals {
		level := StockLevel{
			ItemID:     t.Key.ItemID,
			LocationID: t.Key.LocationID,
			Quantity:   t.Quantity,
		}

		if l.Catalog != nil {
			item, ok := items[t.Key.ItemID]
			if !ok {
				if item, err = l.Catalog.Item(ctx, t.Key.ItemID); err != nil {
					return nil, err
				}
				items[t.Key.ItemID] = item
			}
			if item != nil {
				level.ItemName = item.Name
				level.SKU = item.SKU
				level.UnitOfMeasure = item.UnitOfMeasure
				level.ReorderLevel = item.ReorderLevel
			}

			loc, ok := locations[t.Key.LocationID]
			if !ok {
				if loc, err = l.Catalog.Location(ctx, t.Key.LocationID); err != nil {
					return nil, err
				}
				locations[t.Key.LocationID] = loc
			}
			if loc != nil {
				level.LocationName = loc.Name
			}
		}

		level.BelowReorder = level.Quantity.LessThanOrEqual(level.ReorderLevel)
		if filter.BelowReorderOnly && !level.BelowReorder {
			continue
		}
		levels = append(levels, level)
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].ItemName != levels[j].ItemName {
			return levels[i].ItemName < levels[j].ItemName
		}
		return levels[i].LocationName < levels[j].LocationName
	})
	return levels, nil
}
