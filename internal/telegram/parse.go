package telegram

import (
	"errors"
	"strings"

	"github.com/suspectuso/proxipay/internal/presence"
	"github.com/suspectuso/proxipay/internal/storage"
)

var errBadCommand = errors.New("bad command")

// validIdentifier accepts 1..MaxIdentifierBytes decimal digits.
func validIdentifier(id string) bool {
	if id == "" || len(id) > presence.MaxIdentifierBytes {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseProductCommand parses "/product <id> <price> <name…>".
func parseProductCommand(text string) (storage.Product, error) {
	fields := strings.Fields(strings.TrimPrefix(text, "/product"))
	if len(fields) < 3 {
		return storage.Product{}, errBadCommand
	}

	price, err := storage.ParsePrice(strings.Replace(fields[1], ",", ".", 1))
	if err != nil {
		return storage.Product{}, err
	}
	return storage.Product{
		ID:        fields[0],
		Name:      strings.Join(fields[2:], " "),
		UnitPrice: price,
	}, nil
}

// parseDeleteProductCommand parses "/delproduct <id>".
func parseDeleteProductCommand(text string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(text, "/delproduct"))
	if len(fields) != 1 {
		return "", errBadCommand
	}
	return fields[0], nil
}
