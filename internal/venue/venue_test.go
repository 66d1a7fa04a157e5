package venue

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestParseNamesCaseInsensitive(t *testing.T) {
	names, err := ParseNames("Binance, BITSTAMP")
	require.NoError(t, err)
	assert.Equal(t, []Name{Binance, Bitstamp}, names)
}

func TestParseNamesRejectsUnknown(t *testing.T) {
	_, err := ParseNames("binance,coinbase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coinbase")
}

func TestParseNamesRejectsEmpty(t *testing.T) {
	_, err := ParseNames("")
	require.Error(t, err)
}

func TestPairLowerUpper(t *testing.T) {
	p := Pair{Base: "Eth", Quote: "bTC"}
	assert.Equal(t, "ethbtc", p.Lower())
	assert.Equal(t, "ETHBTC", p.Upper())
}

func TestAllListsBothVenues(t *testing.T) {
	assert.ElementsMatch(t, []Name{Binance, Bitstamp}, All())
}
