// Package normalize flattens parsed listing records into typed warehouse
// rows. The feature lines are free text in Spanish; each section has its
// own splitter keyed on the phrases the site uses.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"idealista-harvester/internal/listing"
)

// TransactionSale selects the sale title pattern; any other transaction
// value is treated as a rental.
const TransactionSale = "sale"

var (
	digitsPattern   = regexp.MustCompile(`\d+`)
	numberPattern   = regexp.MustCompile(`[\d]+[.,\d]+|[\d]*[.][\d]+|[\d]+`)
	salePattern     = regexp.MustCompile(`(.*) en venta en (.*)`)
	rentPattern     = regexp.MustCompile(`Alquiler de (.*) en (.*)`)
	bedroomsPattern = regexp.MustCompile(`(\d+)\s*habita`)
	usefulPattern   = regexp.MustCompile(`(\d+)\s*m² útiles`)
)

// Record turns one parsed listing into its warehouse row. The scrape
// timestamp comes from the record; the last-update date has no year on the
// page, so the scrape year is assumed.
func Record(rec listing.Record, transaction string) listing.Row {
	row := listing.Row{
		ListingID:  digitsPattern.FindString(rec.URL),
		URL:        rec.URL,
		Location:   rec.Location,
		Currency:   rec.Currency,
		PosterType: rec.PosterType,
		ScrapedAt:  rec.ScrapedAt.UTC(),
	}

	if kind, addr, ok := titleParts(rec.Title, rec.Location, transaction); ok {
		row.PropertyType = &kind
		row.Address = &addr
	}
	if rec.Price > 0 {
		row.Price = f32ptr(float32(rec.Price))
	}
	if rec.OriginalPrice > 0 {
		row.OriginalPrice = f32ptr(float32(rec.OriginalPrice))
	}
	if len(rec.Tags) > 0 {
		row.Tags = strptr(strings.Join(rec.Tags, ", "))
	}
	if rec.Description != "" {
		row.Description = strptr(rec.Description)
	}
	if rec.PosterName != "" {
		row.PosterName = strptr(rec.PosterName)
	}

	applyBasic(&row, rec.Features[listing.SectionBasic])
	applyBuilding(&row, rec.Features[listing.SectionBuild])
	applyAmenities(&row, rec.Features[listing.SectionAmenit])
	applyEnergy(&row, rec.Features[listing.SectionEnergy])

	if d, ok := spanishDate(rec.Updated, rec.ScrapedAt.Year()); ok {
		row.LastUpdate = &d
	}
	return row
}

// titleParts splits "Piso en venta en calle de Alcalá" (or the rental
// variant) into the property kind and the address, suffixed with the
// location line.
func titleParts(title, location, transaction string) (kind, addr string, ok bool) {
	pattern := rentPattern
	if transaction == TransactionSale {
		pattern = salePattern
	}
	m := pattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]) + ", " + location, true
}

func applyBasic(row *listing.Row, lines []string) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "construidos") || strings.Contains(lower, "útiles"):
			if strings.Contains(lower, "construidos") {
				head := strings.SplitN(lower, "construidos", 2)[0]
				if n, ok := firstInt(head); ok {
					row.BuiltArea = f32ptr(float32(n))
				}
			}
			if m := usefulPattern.FindStringSubmatch(lower); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					row.UsefulArea = f32ptr(float32(n))
				}
			}
		case strings.Contains(lower, "planta"):
			// In the basic section this is the floor count of a house.
			if n, ok := firstInt(lower); ok {
				row.Floors = i32ptr(int32(n))
			}
		case strings.Contains(lower, "parcela"):
			if n, ok := separatedInt(lower); ok {
				row.LotArea = f32ptr(float32(n))
			}
		case strings.Contains(lower, "habitaci"):
			if strings.Contains(lower, "sin") {
				row.Bedrooms = i32ptr(0)
			} else if m := bedroomsPattern.FindStringSubmatch(line); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					row.Bedrooms = i32ptr(int32(n))
				}
			}
		case strings.Contains(lower, "baño"):
			if strings.Contains(lower, "sin") {
				row.Bathrooms = i32ptr(0)
			} else if n, ok := firstInt(lower); ok {
				row.Bathrooms = i32ptr(int32(n))
			}
		case strings.Contains(lower, "garaje"):
			row.Parking = true
			included := strings.Contains(lower, "incluida")
			row.ParkingIncluded = boolptr(included)
			if !included {
				if n, ok := separatedInt(lower); ok {
					row.ParkingPrice = f32ptr(float32(n))
				}
			}
		case strings.Contains(lower, "promoción") || strings.Contains(lower, "segunda mano"):
			row.Condition = strptr(line)
		case strings.Contains(lower, "armario"):
			row.BuiltinWardrobe = true
		case strings.Contains(lower, "trastero"):
			row.StorageRoom = true
		case strings.Contains(lower, "orientación"):
			row.CardinalOrientation = strptr(line)
		case strings.Contains(lower, "calefacción"):
			row.Heating = strptr(line)
		case strings.Contains(lower, "movilidad reducida"):
			row.Accessibility = true
		case strings.Contains(lower, "construido en"):
			if n, ok := firstInt(lower); ok {
				row.YearBuilt = i32ptr(int32(n))
			}
		case strings.Contains(lower, "terraza"):
			row.Terrace = true
		case strings.Contains(lower, "balcón"):
			row.Balcony = true
		}
	}
}

func applyBuilding(row *listing.Row, lines []string) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "bajo") || strings.Contains(lower, "planta") ||
			strings.Contains(lower, "interior") || strings.Contains(lower, "exterior"):
			if strings.Contains(lower, "bajo") || strings.Contains(lower, "planta") {
				switch {
				case strings.Contains(lower, "bajo"):
					row.Floor = f32ptr(0)
				case strings.Contains(lower, "entreplanta"):
					row.Floor = f32ptr(0.5)
				default:
					if n, ok := firstInt(lower); ok {
						row.Floor = f32ptr(float32(n))
					}
				}
			}
			if strings.Contains(lower, "interior") {
				row.PropertyOrientation = strptr("Interior")
			} else if strings.Contains(lower, "exterior") {
				row.PropertyOrientation = strptr("Exterior")
			}
		case strings.Contains(lower, "ascensor"):
			if strings.Contains(lower, "con") {
				row.Elevator = boolptr(true)
			} else if strings.Contains(lower, "sin") {
				row.Elevator = boolptr(false)
			}
		}
	}
}

func applyAmenities(row *listing.Row, lines []string) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "aire acondicionado"):
			row.AirConditioning = true
		case strings.Contains(lower, "piscina"):
			row.Pool = true
		case strings.Contains(lower, "zonas verdes") || strings.Contains(lower, "jardín"):
			row.GreenAreas = true
		}
	}
}

// applyEnergy reads the recomposed certificate lines. A line that is
// neither consumption nor emissions is the certificate status itself
// ("En trámite", "No indicado") and ends the section.
func applyEnergy(row *listing.Row, lines []string) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "consumo") && !strings.Contains(lower, "emisiones") {
			row.EPCStatus = strptr(line)
			break
		}
		row.EPCStatus = strptr("Disponible")
		if strings.Contains(lower, "consumo") {
			if strings.Contains(lower, "kwh") {
				if v, ok := firstFloat(lower); ok {
					row.Consumption = f32ptr(v)
				}
			}
			if label, ok := trailingLabel(lower); ok {
				row.ConsumptionLabel = strptr(label)
			}
		}
		if strings.Contains(lower, "emisiones") {
			if strings.Contains(lower, "kg co2") {
				if v, ok := firstFloat(lower); ok {
					row.Emissions = f32ptr(v)
				}
			}
			if label, ok := trailingLabel(lower); ok {
				row.EmissionsLabel = strptr(label)
			}
		}
	}
}

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// spanishDate parses the "12 de mayo" fragment; the page omits the year.
func spanishDate(s string, year int) (time.Time, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) != 3 || fields[1] != "de" {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := spanishMonths[fields[2]]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func firstInt(s string) (int, bool) {
	m := digitsPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// separatedInt reads the first number that may carry thousands dots,
// "18.000 € garaje" -> 18000.
func separatedInt(s string) (int, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ".", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstFloat(s string) (float32, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

// trailingLabel reads the single-letter energy label at the end of a
// certificate line.
func trailingLabel(lower string) (string, bool) {
	fields := strings.Fields(lower)
	if len(fields) < 2 {
		return "", false
	}
	last := fields[len(fields)-1]
	if len(last) == 1 && unicode.IsLetter(rune(last[0])) {
		return last, true
	}
	return "", false
}

func f32ptr(v float32) *float32 { return &v }
func i32ptr(v int32) *int32     { return &v }
func strptr(s string) *string   { return &s }
func boolptr(b bool) *bool      { return &b }
