package datamodel

import "fmt"

// Unit names the physical unit a sensor's values are expressed in.
// Description is optional free text (e.g. a long-form name).
type Unit struct {
	Name        string
	Description *string
}

// NewUnit builds a Unit, treating an empty description as absent.
func NewUnit(name string, description *string) Unit {
	if description != nil && *description == "" {
		description = nil
	}
	return Unit{Name: name, Description: description}
}

func (u Unit) String() string {
	if u.Description != nil {
		return fmt.Sprintf("%s (%s)", u.Name, *u.Description)
	}
	return u.Name
}
