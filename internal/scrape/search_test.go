package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchSpecURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		spec SearchSpec
		want string
	}{
		{
			name: "province wide sale",
			spec: SearchSpec{Transaction: TransactionSale, Period: PeriodTwoDays, Province: "Toledo"},
			want: "https://www.idealista.com/venta-viviendas/toledo-provincia/con-publicado_ultimas-48-horas/",
		},
		{
			name: "zoned rent",
			spec: SearchSpec{Transaction: TransactionRent, Period: PeriodWeek, Province: "Madrid", Zone: "Chamberi"},
			want: "https://www.idealista.com/alquiler-viviendas/chamberi-madrid/con-publicado_ultima-semana/",
		},
		{
			name: "rooms last month",
			spec: SearchSpec{Transaction: TransactionRoom, Period: PeriodMonth, Province: "Las Palmas"},
			want: "https://www.idealista.com/alquiler-habitacion/las-palmas-provincia/con-publicado_ultimo-mes/",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.spec.URL()
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSearchSpecURLRejectsNonsense(t *testing.T) {
	t.Parallel()

	_, err := SearchSpec{Transaction: "swap", Period: PeriodDay, Province: "Toledo"}.URL()
	require.Error(t, err)

	_, err = SearchSpec{Transaction: TransactionSale, Period: "fortnight", Province: "Toledo"}.URL()
	require.Error(t, err)

	_, err = SearchSpec{Transaction: TransactionSale, Period: PeriodDay}.URL()
	require.Error(t, err)
}
