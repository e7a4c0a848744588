package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/chils-store/internal/domain/product"
)

// loadMenu reads a JSON array of products. Files ending in .gz are
// decompressed first.
func loadMenu(path string) ([]product.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return decodeMenu(r)
}

func decodeMenu(r io.Reader) ([]product.Input, error) {
	var menu []product.Input
	if err := json.NewDecoder(r).Decode(&menu); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if len(menu) == 0 {
		return nil, errors.New("menu is empty")
	}
	return menu, nil
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var defaultMenu = []product.Input{
	{
		Name:        "Bibimbap",
		Description: "Mixed rice with meat and assorted vegetables, served with gochujang",
		Price:       price("12.99"),
		Category:    product.CategoryMainCourse,
		Stock:       50,
		Ingredients: []string{"rice", "beef", "vegetables", "egg", "gochujang"},
		SpiceLevel:  product.SpiceMedium,
		IsFeatured:  true,
	},
	{
		Name:        "Kimchi",
		Description: "Traditional fermented Korean side dish made of vegetables",
		Price:       price("4.99"),
		Category:    product.CategorySideDish,
		Stock:       100,
		Ingredients: []string{"cabbage", "radish", "scallions", "chili powder"},
		SpiceLevel:  product.SpiceSpicy,
	},
	{
		Name:        "Bulgogi",
		Description: "Thinly sliced marinated beef barbecue",
		Price:       price("15.99"),
		Category:    product.CategoryMainCourse,
		Stock:       30,
		Ingredients: []string{"beef", "soy sauce", "sesame oil", "garlic", "pear"},
		SpiceLevel:  product.SpiceMild,
		IsFeatured:  true,
	},
	{
		Name:        "Korean Beer (Cass)",
		Description: "Refreshing Korean lager beer",
		Price:       price("5.99"),
		Category:    product.CategoryBeverage,
		Stock:       200,
		Ingredients: []string{"water", "malt", "hops", "yeast"},
		SpiceLevel:  product.SpiceMild,
	},
	{
		Name:        "Tteokbokki",
		Description: "Spicy stir-fried rice cakes",
		Price:       price("8.99"),
		Category:    product.CategoryMainCourse,
		Stock:       40,
		Ingredients: []string{"rice cakes", "gochujang", "fish cakes", "green onions"},
		SpiceLevel:  product.SpiceSpicy,
	},
	{
		Name:        "Kimchi Fried Rice",
		Description: "Fried rice with kimchi and vegetables, topped with egg",
		Price:       price("10.99"),
		Category:    product.CategoryMainCourse,
		Stock:       35,
		Ingredients: []string{"rice", "kimchi", "vegetables", "egg", "sesame oil"},
		SpiceLevel:  product.SpiceMedium,
	},
	{
		Name:        "Japchae",
		Description: "Sweet potato noodles stir-fried with vegetables and beef",
		Price:       price("11.99"),
		Category:    product.CategoryMainCourse,
		Stock:       25,
		Ingredients: []string{"sweet potato noodles", "beef", "vegetables", "sesame oil"},
		SpiceLevel:  product.SpiceMild,
	},
	{
		Name:        "Korean Iced Tea",
		Description: "Refreshing traditional Korean iced tea",
		Price:       price("3.99"),
		Category:    product.CategoryBeverage,
		Stock:       150,
		Ingredients: []string{"tea leaves", "honey", "ice"},
		SpiceLevel:  product.SpiceMild,
	},
}
