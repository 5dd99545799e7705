package inventory

import "github.com/ariefcatur/go-gift-mall/internal/store"

type Visibility string

const (
	OnSale Visibility = "ON_SALE"
	Hidden Visibility = "HIDDEN"
)

// Hiding happens on order placement, receipt confirmation and reward draws.
// Nothing moves a product back on sale automatically.
var validNext = map[Visibility]map[Visibility]bool{
	OnSale: {Hidden: true},
	Hidden: {},
}

func CanTransition(from, to Visibility) bool {
	return validNext[from][to]
}

func VisibilityOf(p store.Product) Visibility {
	if p.Visible {
		return OnSale
	}
	return Hidden
}
