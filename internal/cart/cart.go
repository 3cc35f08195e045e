// Package cart holds the shopping cart model, its persistence and the
// per-session service used by the HTTP layer and checkout.
package cart

// Line is one product in the cart. Quantity stays within 1..AvailableStock
// when the stock snapshot is known.
type Line struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unitPrice"`
	AvailableStock int    `json:"availableStock"`
	Quantity       int    `json:"quantity"`
	ImageRef       string `json:"imageRef"`
	CategoryRef    string `json:"categoryRef"`
}

// Subtotal is UnitPrice*Quantity.
func (l Line) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Product is the catalog view needed to add a line.
type Product struct {
	ID        string
	Name      string
	Price     int64
	ImageURLs []string
	Stock     int
	Category  string
}

// InStock reports whether the product can be added from the catalog.
func (p Product) InStock() bool { return p.Stock > 0 }

// Cart is an ordered list of lines with unique product ids.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Add merges p into an existing line (+1, no stock check) or appends a new
// line with quantity 1.
func (c *Cart) Add(p Product) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID {
			c.Lines[i].Quantity++
			return
		}
	}
	line := Line{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPrice:      p.Price,
		AvailableStock: p.Stock,
		Quantity:       1,
		CategoryRef:    p.Category,
	}
	if len(p.ImageURLs) > 0 {
		line.ImageRef = p.ImageURLs[0]
	}
	c.Lines = append(c.Lines, line)
}

// Remove drops the line for productID. Unknown ids are ignored.
func (c *Cart) Remove(productID string) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return
		}
	}
}

// SetQuantity sets the quantity of productID. n <= 0 removes the line.
// The result is clamped to the stock snapshot; a line without a positive
// stock snapshot can be lowered but never raised.
func (c *Cart) SetQuantity(productID string, n int) {
	if n <= 0 {
		c.Remove(productID)
		return
	}
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ProductID != productID {
			continue
		}
		switch {
		case l.AvailableStock > 0 && n > l.AvailableStock:
			n = l.AvailableStock
		case l.AvailableStock <= 0 && n > l.Quantity:
			n = l.Quantity
		}
		l.Quantity = n
		return
	}
}

// ClampToStock brings every line within its stock snapshot before an order is
// placed: quantities above stock are lowered and lines without stock are
// dropped. It reports whether anything changed.
func (c *Cart) ClampToStock() bool {
	changed := false
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if l.AvailableStock <= 0 {
			changed = true
			continue
		}
		if l.Quantity > l.AvailableStock {
			l.Quantity = l.AvailableStock
			changed = true
		}
		kept = append(kept, l)
	}
	c.Lines = kept
	return changed
}

// Clear empties the cart.
func (c *Cart) Clear() { c.Lines = nil }

// Total is the sum of line subtotals in VND.
func (c Cart) Total() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

// ItemCount is the sum of quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Has reports whether productID has a line.
func (c Cart) Has(productID string) bool {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }
