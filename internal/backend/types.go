package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Sung-star/storefront-checkout/internal/cart"
)

// ID decodes identifiers the backend sends either as numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*id = ID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// ImageList accepts a JSON array of paths or one comma separated string.
type ImageList []string

func (l *ImageList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = cleanPaths(arr)
		return nil
	}
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode imageUrls: %w", err)
	}
	if s == nil {
		*l = nil
		return nil
	}
	*l = cleanPaths(strings.Split(*s, ","))
	return nil
}

func cleanPaths(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Product is the subset of GET /products/{id} used by the cart.
type Product struct {
	ID           ID          `json:"id"`
	Name         string      `json:"name"`
	Price        json.Number `json:"price"`
	Quantity     int         `json:"quantity"`
	ImageURLs    ImageList   `json:"imageUrls"`
	CategoryName string      `json:"categoryName"`
}

// CartProduct converts the backend product; prices are whole VND.
func (p Product) CartProduct() (cart.Product, error) {
	price, err := parseMoney(p.Price)
	if err != nil {
		return cart.Product{}, err
	}
	return cart.Product{
		ID:        string(p.ID),
		Name:      p.Name,
		Price:     price,
		ImageURLs: []string(p.ImageURLs),
		Stock:     p.Quantity,
		Category:  p.CategoryName,
	}, nil
}

func parseMoney(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, fmt.Errorf("decode price %q: %w", n, err)
	}
	return int64(math.Round(f)), nil
}

// Address is one entry of GET /addresses/user/{id}.
type Address struct {
	ID            ID     `json:"id"`
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	Province      string `json:"province"`
	District      string `json:"district"`
	Ward          string `json:"ward"`
	DetailAddress string `json:"detailAddress"`
	Label         string `json:"label"`
	IsDefault     bool   `json:"isDefault"`
}

// LoginResult is the body of POST /auth/login.
type LoginResult struct {
	Token    string `json:"token"`
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}
