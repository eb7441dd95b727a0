// Package menu loads eatery menus from JSON data files.
//
// The on-disk format is the raw export shape: a menu file holds
// "menu_infos", each dish type nests its selectable options under
// "option_items". Mapping flattens that into the shapes the API serves.
package menu

// Price is a display-ready amount. Value carries the numeric amount;
// Text and Unit are presentation only.
type Price struct {
	Text  string  `json:"text"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}

type Photo struct {
	Width  int    `json:"width"`
	Value  string `json:"value"`
	Height int    `json:"height"`
}

type OptionItem struct {
	Name        string `json:"name"`
	Weight      int    `json:"weight"`
	NtopPrice   Price  `json:"ntop_price"`
	MaxQuantity int    `json:"max_quantity"`
	IsDefault   bool   `json:"is_default"`
	Price       Price  `json:"price"`
}

type Option struct {
	Name      string       `json:"name"`
	MinSelect int          `json:"min_select"`
	MaxSelect int          `json:"max_select"`
	Items     []OptionItem `json:"items"`
}

type Dish struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         Price    `json:"price"`
	DiscountPrice *Price   `json:"discount_price,omitempty"`
	Photos        []Photo  `json:"photos"`
	Options       []Option `json:"options"`
}

type DishType struct {
	DishTypeName string `json:"dish_type_name"`
	Dishes       []Dish `json:"dishes"`
}

// Eatery is one entry in the menu.json index file.
type Eatery struct {
	Name     string `json:"name"`
	DataPath string `json:"data_path"`
	URL      string `json:"url,omitempty"`
}

// Raw shapes, as exported by the upstream menu scraper.

type RawOptionItems struct {
	MinSelect int          `json:"min_select"`
	MaxSelect int          `json:"max_select"`
	Items     []OptionItem `json:"items"`
}

type RawOption struct {
	Name        string         `json:"name"`
	OptionItems RawOptionItems `json:"option_items"`
}

type RawDish struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Price         Price       `json:"price"`
	DiscountPrice *Price      `json:"discount_price"`
	Photos        []Photo     `json:"photos"`
	Options       []RawOption `json:"options"`
}

type RawDishType struct {
	DishTypeName string    `json:"dish_type_name"`
	Dishes       []RawDish `json:"dishes"`
}

// Map flattens raw dish types into the served shape. Missing photo or
// option lists become empty slices rather than null, and max_select
// falls back to 1 so single-choice groups stay single-choice.
func Map(raw []RawDishType) []DishType {
	mapped := make([]DishType, 0, len(raw))

	for _, dt := range raw {
		dishes := make([]Dish, 0, len(dt.Dishes))

		for _, d := range dt.Dishes {
			photos := d.Photos
			if photos == nil {
				photos = []Photo{}
			}

			options := make([]Option, 0, len(d.Options))
			for _, o := range d.Options {
				maxSelect := o.OptionItems.MaxSelect
				if maxSelect == 0 {
					maxSelect = 1
				}

				items := o.OptionItems.Items
				if items == nil {
					items = []OptionItem{}
				}

				options = append(options, Option{
					Name:      o.Name,
					MinSelect: o.OptionItems.MinSelect,
					MaxSelect: maxSelect,
					Items:     items,
				})
			}

			dishes = append(dishes, Dish{
				ID:            d.ID,
				Name:          d.Name,
				Description:   d.Description,
				Price:         d.Price,
				DiscountPrice: d.DiscountPrice,
				Photos:        photos,
				Options:       options,
			})
		}

		mapped = append(mapped, DishType{
			DishTypeName: dt.DishTypeName,
			Dishes:       dishes,
		})
	}

	return mapped
}

// FindDish scans every dish type for the given dish id.
func FindDish(menu []DishType, dishID int) (Dish, bool) {
	for _, dt := range menu {
		for _, d := range dt.Dishes {
			if d.ID == dishID {
				return d, true
			}
		}
	}

	return Dish{}, false
}
