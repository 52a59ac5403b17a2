package model

// Package model contains domain models/data structures.
// Keep it free of persistence and transport concerns.

// Entity identifies one of the submission categories.
type Entity string

const (
	EntityLandlord     Entity = "landlord"
	EntityOrganization Entity = "organization"
	EntityContact      Entity = "contact"
)

// Collection keys used in the record document.
const (
	CollectionLandlords     = "landlords"
	CollectionOrganizations = "organizations"
	CollectionContact       = "contact"
)

// Collections lists every known collection key in document order.
var Collections = []string{CollectionLandlords, CollectionOrganizations, CollectionContact}

// Collection returns the document key records of this entity are stored under.
func (e Entity) Collection() string {
	switch e {
	case EntityLandlord:
		return CollectionLandlords
	case EntityOrganization:
		return CollectionOrganizations
	case EntityContact:
		return CollectionContact
	default:
		return ""
	}
}

// Document is the full persisted state: collection key to ordered records.
type Document map[string][]Record

// NewDocument returns a document with an empty array for every known collection.
func NewDocument() Document {
	doc := make(Document, len(Collections))
	for _, c := range Collections {
		doc[c] = []Record{}
	}
	return doc
}

// Normalize fills in missing known collections with empty arrays.
func (d Document) Normalize() Document {
	if d == nil {
		return NewDocument()
	}
	for _, c := range Collections {
		if d[c] == nil {
			d[c] = []Record{}
		}
	}
	return d
}
