package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

func TestOrderRoundTrip(t *testing.T) {
	order := []record.SortKey{{Field: "fecha", Desc: true}, {Field: "tabla"}}

	assert.Equal(t, "-fecha,tabla", EncodeOrder(order))
	assert.Equal(t, order, DecodeOrder("-fecha, tabla,"))
	assert.Nil(t, DecodeOrder(" "))
}

func TestSubscribeQuery(t *testing.T) {
	assert.Equal(t, "table=comisiones", SubscribeQuery("comisiones", record.MaskAll).Encode())
	assert.Equal(t, "events=INSERT%2CDELETE&table=comisiones",
		SubscribeQuery("comisiones", record.MaskInsert|record.MaskDelete).Encode())
}

func TestError(t *testing.T) {
	err := &Error{Code: CodeForbidden, Message: "sin permiso"}
	assert.EqualError(t, err, "forbidden: sin permiso")
}
