package catalog

import (
	"embed"
	"fmt"
	"sort"
)

// Shop is one retailer's slice of the catalog.
type Shop struct {
	ID    string
	Items []Item
}

// Catalog is a read-only, multi-shop item collection. It is safe for
// concurrent use once built.
type Catalog struct {
	order []string
	shops map[string][]Item
	byID  map[string]Item
}

// New builds a catalog. Shops keep the order they are passed in; a repeated
// shop id appends to the earlier slice.
func New(shops ...Shop) *Catalog {
	c := &Catalog{
		shops: make(map[string][]Item, len(shops)),
		byID:  make(map[string]Item),
	}
	for _, s := range shops {
		if _, ok := c.shops[s.ID]; !ok {
			c.order = append(c.order, s.ID)
		}
		items := make([]Item, len(s.Items))
		copy(items, s.Items)
		c.shops[s.ID] = append(c.shops[s.ID], items...)
		for _, it := range items {
			if _, dup := c.byID[it.ID]; !dup {
				c.byID[it.ID] = it
			}
		}
	}
	return c
}

// Shops returns the shop ids in declaration order.
func (c *Catalog) Shops() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HasShop reports whether id is a known shop.
func (c *Catalog) HasShop(id string) bool {
	_, ok := c.shops[id]
	return ok
}

// Items returns the items of one shop. The returned slice must not be modified.
func (c *Catalog) Items(shop string) []Item {
	return c.shops[shop]
}

// Lookup finds an item by id across all shops.
func (c *Catalog) Lookup(id string) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// Len is the total number of items.
func (c *Catalog) Len() int {
	n := 0
	for _, items := range c.shops {
		n += len(items)
	}
	return n
}

// Categories returns the distinct categories present, sorted.
func (c *Catalog) Categories() []string {
	seen := map[string]struct{}{}
	for _, items := range c.shops {
		for _, it := range items {
			seen[it.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

//go:embed data/*.csv
var demoFS embed.FS

// DemoShops lists the bundled retailers in load order.
var DemoShops = []string{"alpineMart", "snowBase", "peakShop"}

// Demo builds a fresh catalog from the bundled retailer CSV files.
func Demo() (*Catalog, error) {
	shops := make([]Shop, 0, len(DemoShops))
	for _, id := range DemoShops {
		f, err := demoFS.Open("data/" + id + ".csv")
		if err != nil {
			return nil, fmt.Errorf("open %s catalog: %w", id, err)
		}
		items, err := LoadCSV(id, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", id, err)
		}
		shops = append(shops, Shop{ID: id, Items: items})
	}
	return New(shops...), nil
}
