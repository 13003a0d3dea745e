// Package listing defines the property data shapes: Record is what the
// parser extracts from a property page, Row is the flattened, typed form
// the warehouse stores.
package listing

import "time"

// Feature section headings as they appear on property pages. The
// normalizer keys its splitters on them.
const (
	SectionBasic  = "Características básicas"
	SectionBuild  = "Edificio"
	SectionAmenit = "Equipamiento"
	SectionEnergy = "Certificado energético"
)

// PosterType values. The site is Spanish; the raw strings are kept.
const (
	PosterProfessional = "Profesional"
	PosterParticular   = "Particular"
)

// Record holds the raw extraction from one property page. Numeric zero
// values mean the field was absent; the normalizer turns them into nulls.
type Record struct {
	URL           string
	Title         string
	Location      string
	Price         int
	OriginalPrice int
	Currency      string
	Tags          []string
	Description   string
	PosterType    string
	PosterName    string
	Features      map[string][]string // section heading -> feature lines
	Updated       string              // raw "12 de mayo" fragment from the stats line
	ScrapedAt     time.Time
}

// Row is the warehouse schema. Column names and types follow the BigQuery
// tables this harvester appends to; pointers mark nullable columns.
type Row struct {
	ListingID           string     `parquet:"ID_LISTING"`
	URL                 string     `parquet:"URL"`
	PropertyType        *string    `parquet:"TYPE_PROPERTY,optional"`
	Address             *string    `parquet:"ADDRESS,optional"`
	Location            string     `parquet:"LOCATION"`
	Price               *float32   `parquet:"PRICE,optional"`
	OriginalPrice       *float32   `parquet:"ORIGINAL_PRICE,optional"`
	Currency            string     `parquet:"CURRENCY"`
	Tags                *string    `parquet:"TAGS,optional"`
	Description         *string    `parquet:"LISTING_DESCRIPTION,optional"`
	PosterType          string     `parquet:"POSTER_TYPE"`
	PosterName          *string    `parquet:"POSTER_NAME,optional"`
	BuiltArea           *float32   `parquet:"BUILT_AREA,optional"`
	UsefulArea          *float32   `parquet:"USEFUL_AREA,optional"`
	LotArea             *float32   `parquet:"LOT_AREA,optional"`
	Bedrooms            *int32     `parquet:"NUM_BEDROOMS,optional"`
	Bathrooms           *int32     `parquet:"NUM_BATHROOMS,optional"`
	Condition           *string    `parquet:"CONDITION,optional"`
	AirConditioning     bool       `parquet:"AIR_CONDITIONING"`
	Heating             *string    `parquet:"HEATING,optional"`
	BuiltinWardrobe     bool       `parquet:"BUILTIN_WARDROBE"`
	Elevator            *bool      `parquet:"ELEVATOR,optional"`
	PropertyOrientation *string    `parquet:"PROPERTY_ORIENTATION,optional"`
	Parking             bool       `parquet:"FLAG_PARKING"`
	ParkingIncluded     *bool      `parquet:"PARKING_INCLUDED,optional"`
	ParkingPrice        *float32   `parquet:"PARKING_PRICE,optional"`
	GreenAreas          bool       `parquet:"GREEN_AREAS"`
	Pool                bool       `parquet:"POOL"`
	Terrace             bool       `parquet:"TERRACE"`
	StorageRoom         bool       `parquet:"STORAGE_ROOM"`
	Balcony             bool       `parquet:"BALCONY"`
	CardinalOrientation *string    `parquet:"CARDINAL_ORIENTATION,optional"`
	Accessibility       bool       `parquet:"ACCESIBILITY_FLAG"`
	YearBuilt           *int32     `parquet:"YEAR_BUILT,optional"`
	Floors              *int32     `parquet:"NUM_FLOORS,optional"`
	Floor               *float32   `parquet:"FLOOR,optional"`
	EPCStatus           *string    `parquet:"STATUS_EPC,optional"`
	ConsumptionLabel    *string    `parquet:"ENERGY_CONSUMPTION_LABEL,optional"`
	EmissionsLabel      *string    `parquet:"ENERGY_EMISSIONS_LABEL,optional"`
	Consumption         *float32   `parquet:"ENERGY_CONSUMPTION,optional"`
	Emissions           *float32   `parquet:"ENERGY_EMISSIONS,optional"`
	LastUpdate          *time.Time `parquet:"LAST_UPDATE_DATE,optional,date"`
	ScrapedAt           time.Time  `parquet:"TIMESTAMP,timestamp(millisecond)"`
}
