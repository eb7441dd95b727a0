// Package store persists dish selections for the shared group cart.
//
// Every backend implements the same contract and differs only in where
// the records live. Prices are computed once at creation time from the
// menu dish, never trusted from the client and never recomputed on read.
// A selection belongs to the display name that created it; that name is
// deliberately an unauthenticated string compared by equality.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"lunchbox/menu"
)

type SelectedItem struct {
	ItemID   string  `json:"itemId"`
	ItemName string  `json:"itemName"`
	Price    float64 `json:"price"`
}

type SelectedOption struct {
	OptionID      string         `json:"optionId"`
	OptionName    string         `json:"optionName"`
	SelectedItems []SelectedItem `json:"selectedItems"`
}

type Selection struct {
	ID              string           `json:"id"`
	DishID          int              `json:"dishId"`
	Name            string           `json:"name"`
	Price           float64          `json:"price"`
	PhotoURL        string           `json:"photoUrl,omitempty"`
	ClientName      string           `json:"clientName"`
	Quantity        int              `json:"quantity"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
	Note            string           `json:"note,omitempty"`
	Timestamp       int64            `json:"timestamp"`
}

// Store is the persistence contract for selections. Implementations do
// no in-process caching: every call reflects the backing store's state
// at call time.
type Store interface {
	List() ([]Selection, error)
	Add(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) (Selection, error)
	Remove(id string) (bool, error)
	RemoveAll() error
	RenameClient(oldName, newName string) (int, error)
	Close() error
}

// ComputePrice returns the canonical price of a selection: the dish's
// discount price if present, else its base price, plus the price of
// every selected option item, all multiplied by the quantity.
func ComputePrice(dish menu.Dish, opts []SelectedOption, quantity int) float64 {
	price := dish.Price.Value
	if dish.DiscountPrice != nil {
		price = dish.DiscountPrice.Value
	}

	for _, opt := range opts {
		for _, item := range opt.SelectedItems {
			price += item.Price
		}
	}

	return price * float64(quantity)
}

// newSelection builds the record a backend persists for an add request.
func newSelection(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) Selection {
	if opts == nil {
		opts = []SelectedOption{}
	}

	return Selection{
		ID:              newID(),
		DishID:          dish.ID,
		Name:            dish.Name,
		Price:           ComputePrice(dish, opts, quantity),
		PhotoURL:        photoURL(dish),
		ClientName:      clientName,
		Quantity:        quantity,
		SelectedOptions: opts,
		Note:            note,
		Timestamp:       time.Now().UnixMilli(),
	}
}

func newID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return hex.EncodeToString(buf)
}

// photoURL prefers the first photo wide enough for a card layout,
// falling back to whatever the dish has.
func photoURL(dish menu.Dish) string {
	for _, p := range dish.Photos {
		if p.Width >= 400 {
			return p.Value
		}
	}

	if len(dish.Photos) > 0 {
		return dish.Photos[0].Value
	}

	return ""
}
