package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idealista-harvester/internal/listing"
)

func fullRecord() listing.Record {
	return listing.Record{
		URL:           "https://www.idealista.com/inmueble/94481996/",
		Title:         "Piso en venta en calle de Alcalá, 123",
		Location:      "Goya, Madrid",
		Price:         325000,
		OriginalPrice: 350000,
		Currency:      "€",
		Tags:          []string{"Obra", "nueva"},
		Description:   "Primera línea.",
		PosterType:    listing.PosterProfessional,
		PosterName:    "Inmobiliaria Sol",
		Features: map[string][]string{
			listing.SectionBasic: {
				"120 m² construidos, 105 m² útiles",
				"3 habitaciones",
				"2 baños",
				"Plaza de garaje por 18.000 € adicionales",
				"Segunda mano/buen estado",
				"Armarios empotrados",
				"Trastero",
				"Orientación sur",
				"Calefacción individual: Gas natural",
				"Construido en 1972",
				"Terraza",
				"Balcón",
			},
			listing.SectionBuild:  {"Planta 4ª exterior", "Con ascensor"},
			listing.SectionAmenit: {"Aire acondicionado", "Piscina", "Zonas verdes"},
			listing.SectionEnergy: {
				"Consumo: 92 kWh/m² año E",
				"Emisiones: 20 kg CO2/m² año F",
			},
		},
		Updated:   "12 de mayo",
		ScrapedAt: time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestRecordFullListing(t *testing.T) {
	t.Parallel()

	in := fullRecord()
	row := Record(in, TransactionSale)

	require.Equal(t, "94481996", row.ListingID)
	require.Equal(t, "https://www.idealista.com/inmueble/94481996/", row.URL)
	require.Equal(t, "Goya, Madrid", row.Location)

	require.NotNil(t, row.PropertyType)
	require.Equal(t, "Piso", *row.PropertyType)
	require.NotNil(t, row.Address)
	require.Equal(t, "calle de Alcalá, 123, Goya, Madrid", *row.Address)

	require.NotNil(t, row.Price)
	require.Equal(t, float32(325000), *row.Price)
	require.NotNil(t, row.OriginalPrice)
	require.Equal(t, float32(350000), *row.OriginalPrice)
	require.Equal(t, "€", row.Currency)
	require.NotNil(t, row.Tags)
	require.Equal(t, "Obra, nueva", *row.Tags)
	require.Equal(t, listing.PosterProfessional, row.PosterType)
	require.NotNil(t, row.PosterName)
	require.Equal(t, "Inmobiliaria Sol", *row.PosterName)

	require.NotNil(t, row.BuiltArea)
	require.Equal(t, float32(120), *row.BuiltArea)
	require.NotNil(t, row.UsefulArea)
	require.Equal(t, float32(105), *row.UsefulArea)
	require.NotNil(t, row.Bedrooms)
	require.Equal(t, int32(3), *row.Bedrooms)
	require.NotNil(t, row.Bathrooms)
	require.Equal(t, int32(2), *row.Bathrooms)

	require.True(t, row.Parking)
	require.NotNil(t, row.ParkingIncluded)
	require.False(t, *row.ParkingIncluded)
	require.NotNil(t, row.ParkingPrice)
	require.Equal(t, float32(18000), *row.ParkingPrice)

	require.NotNil(t, row.Condition)
	require.Equal(t, "Segunda mano/buen estado", *row.Condition)
	require.True(t, row.BuiltinWardrobe)
	require.True(t, row.StorageRoom)
	require.NotNil(t, row.CardinalOrientation)
	require.Equal(t, "Orientación sur", *row.CardinalOrientation)
	require.NotNil(t, row.Heating)
	require.Equal(t, "Calefacción individual: Gas natural", *row.Heating)
	require.NotNil(t, row.YearBuilt)
	require.Equal(t, int32(1972), *row.YearBuilt)
	require.True(t, row.Terrace)
	require.True(t, row.Balcony)

	require.NotNil(t, row.Floor)
	require.Equal(t, float32(4), *row.Floor)
	require.NotNil(t, row.PropertyOrientation)
	require.Equal(t, "Exterior", *row.PropertyOrientation)
	require.NotNil(t, row.Elevator)
	require.True(t, *row.Elevator)

	require.True(t, row.AirConditioning)
	require.True(t, row.Pool)
	require.True(t, row.GreenAreas)

	require.NotNil(t, row.EPCStatus)
	require.Equal(t, "Disponible", *row.EPCStatus)
	require.NotNil(t, row.Consumption)
	require.Equal(t, float32(92), *row.Consumption)
	require.NotNil(t, row.ConsumptionLabel)
	require.Equal(t, "e", *row.ConsumptionLabel)
	require.NotNil(t, row.Emissions)
	require.Equal(t, float32(20), *row.Emissions)
	require.NotNil(t, row.EmissionsLabel)
	require.Equal(t, "f", *row.EmissionsLabel)

	require.NotNil(t, row.LastUpdate)
	require.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), *row.LastUpdate)
	require.Equal(t, in.ScrapedAt, row.ScrapedAt)
}

func TestRecordRentTitle(t *testing.T) {
	t.Parallel()

	r := listing.Record{
		URL:      "https://www.idealista.com/inmueble/12/",
		Title:    "Alquiler de piso en Ruzafa",
		Location: "Ruzafa, Valencia",
	}
	row := Record(r, "rent")
	require.NotNil(t, row.PropertyType)
	require.Equal(t, "piso", *row.PropertyType)
	require.NotNil(t, row.Address)
	require.Equal(t, "Ruzafa, Ruzafa, Valencia", *row.Address)
}

func TestRecordUnmatchedTitle(t *testing.T) {
	t.Parallel()

	r := listing.Record{URL: "https://www.idealista.com/inmueble/13/", Title: "Chalet adosado"}
	row := Record(r, TransactionSale)
	require.Nil(t, row.PropertyType)
	require.Nil(t, row.Address)
}

func TestRecordOptionalFieldsStayNull(t *testing.T) {
	t.Parallel()

	row := Record(listing.Record{URL: "https://www.idealista.com/inmueble/14/"}, TransactionSale)
	require.Nil(t, row.Price)
	require.Nil(t, row.OriginalPrice)
	require.Nil(t, row.Tags)
	require.Nil(t, row.Description)
	require.Nil(t, row.PosterName)
	require.Nil(t, row.Elevator)
	require.Nil(t, row.ParkingIncluded)
	require.Nil(t, row.LastUpdate)
	require.False(t, row.Parking)
}

func TestBasicFeatureVariants(t *testing.T) {
	t.Parallel()

	row := Record(listing.Record{
		URL: "https://www.idealista.com/inmueble/15/",
		Features: map[string][]string{
			listing.SectionBasic: {
				"Sin habitación",
				"Sin baño",
				"2 plantas",
				"Parcela de 1.200 m²",
				"Plaza de garaje incluida en el precio",
			},
		},
	}, TransactionSale)

	require.NotNil(t, row.Bedrooms)
	require.Equal(t, int32(0), *row.Bedrooms)
	require.NotNil(t, row.Bathrooms)
	require.Equal(t, int32(0), *row.Bathrooms)
	require.NotNil(t, row.Floors)
	require.Equal(t, int32(2), *row.Floors)
	require.NotNil(t, row.LotArea)
	require.Equal(t, float32(1200), *row.LotArea)

	require.True(t, row.Parking)
	require.NotNil(t, row.ParkingIncluded)
	require.True(t, *row.ParkingIncluded)
	require.Nil(t, row.ParkingPrice, "an included garage carries no extra price")
}

func TestBuildingFloorVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line        string
		floor       float32
		orientation string
	}{
		{"Bajo exterior", 0, "Exterior"},
		{"Entreplanta interior", 0.5, "Interior"},
		{"Planta 7ª interior", 7, "Interior"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.line, func(t *testing.T) {
			t.Parallel()
			row := Record(listing.Record{
				URL:      "https://www.idealista.com/inmueble/16/",
				Features: map[string][]string{listing.SectionBuild: {tc.line}},
			}, TransactionSale)
			require.NotNil(t, row.Floor)
			require.Equal(t, tc.floor, *row.Floor)
			require.NotNil(t, row.PropertyOrientation)
			require.Equal(t, tc.orientation, *row.PropertyOrientation)
		})
	}
}

func TestBuildingElevatorAbsent(t *testing.T) {
	t.Parallel()

	row := Record(listing.Record{
		URL:      "https://www.idealista.com/inmueble/17/",
		Features: map[string][]string{listing.SectionBuild: {"Sin ascensor"}},
	}, TransactionSale)
	require.NotNil(t, row.Elevator)
	require.False(t, *row.Elevator)
}

func TestEnergyCertificatePending(t *testing.T) {
	t.Parallel()

	row := Record(listing.Record{
		URL:      "https://www.idealista.com/inmueble/18/",
		Features: map[string][]string{listing.SectionEnergy: {"En trámite"}},
	}, TransactionSale)
	require.NotNil(t, row.EPCStatus)
	require.Equal(t, "En trámite", *row.EPCStatus)
	require.Nil(t, row.Consumption)
	require.Nil(t, row.ConsumptionLabel)
}

func TestLastUpdateUsesScrapeYear(t *testing.T) {
	t.Parallel()

	row := Record(listing.Record{
		URL:       "https://www.idealista.com/inmueble/19/",
		Updated:   "3 de enero",
		ScrapedAt: time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
	}, TransactionSale)
	require.NotNil(t, row.LastUpdate)
	require.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), *row.LastUpdate)
}

func TestLastUpdateGarbledFragment(t *testing.T) {
	t.Parallel()

	for _, fragment := range []string{"", "ayer", "12 de maio", "de mayo 12"} {
		row := Record(listing.Record{
			URL:       "https://www.idealista.com/inmueble/20/",
			Updated:   fragment,
			ScrapedAt: time.Now(),
		}, TransactionSale)
		require.Nil(t, row.LastUpdate, "fragment %q", fragment)
	}
}
