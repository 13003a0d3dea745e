package scrape

import (
	"fmt"
	"strings"
)

// Transaction kinds a search can target.
const (
	TransactionSale = "sale"
	TransactionRent = "rent"
	TransactionRoom = "room"
)

// Publication periods a search can filter on.
const (
	PeriodDay      = "24h"
	PeriodTwoDays  = "48h"
	PeriodWeek     = "week"
	PeriodMonth    = "month"
)

const siteRoot = "https://www.idealista.com"

var transactionSegments = map[string]string{
	TransactionSale: "venta-viviendas",
	TransactionRent: "alquiler-viviendas",
	TransactionRoom: "alquiler-habitacion",
}

var periodSegments = map[string]string{
	PeriodDay:     "ultimas-24-horas",
	PeriodTwoDays: "ultimas-48-horas",
	PeriodWeek:    "ultima-semana",
	PeriodMonth:   "ultimo-mes",
}

// SearchSpec names one search: what kind of listing, how fresh, and where.
// Zone narrows the search below province level and may be empty.
type SearchSpec struct {
	Transaction string
	Period      string
	Province    string
	Zone        string
}

// URL builds the first results page for the spec. The trailing slash is
// load-bearing: the planner appends "pagina-N.htm" to it.
func (s SearchSpec) URL() (string, error) {
	transaction, ok := transactionSegments[s.Transaction]
	if !ok {
		return "", fmt.Errorf("unknown transaction %q", s.Transaction)
	}
	period, ok := periodSegments[s.Period]
	if !ok {
		return "", fmt.Errorf("unknown period %q", s.Period)
	}
	province := slug(s.Province)
	if province == "" {
		return "", fmt.Errorf("province is required")
	}

	location := province + "-provincia"
	if zone := slug(s.Zone); zone != "" {
		location = zone + "-" + province
	}
	return fmt.Sprintf("%s/%s/%s/con-publicado_%s/", siteRoot, transaction, location, period), nil
}

func slug(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}
