package inmemdb

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core/nursery"
)

// Seed is the master data the memory engine starts with, normally read from a JSON file.
type Seed struct {
	Children []nursery.Child `json:"children"`
	Staff    []nursery.Staff `json:"staff"`
	Classes  []nursery.Class `json:"classes"`
}

// LoadSeed reads a Seed from r and saves its content. Nothing is saved when r holds invalid JSON.
func (db *DB) LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, errors.Wrap(err, "decoding seed")
	}

	db.SaveChildren(seed.Children...)
	db.SaveStaff(seed.Staff...)
	db.SaveClasses(seed.Classes...)
	return seed, nil
}
