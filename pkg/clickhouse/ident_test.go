package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdent(t *testing.T) {
	q, err := Ident("stock_level")
	require.NoError(t, err)
	assert.Equal(t, "`stock_level`", q)

	for _, bad := range []string{"", "1col", "a b", "x) ENGINE=Log; DROP TABLE t --", "a`b", "a.b"} {
		_, err := Ident(bad)
		assert.Error(t, err, bad)
	}
}

func TestQualifiedTable(t *testing.T) {
	q, err := QualifiedTable("invsight.products")
	require.NoError(t, err)
	assert.Equal(t, "`invsight`.`products`", q)

	_, err = QualifiedTable("a.b.c")
	assert.Error(t, err)
	_, err = QualifiedTable("invsight.products; DROP TABLE x")
	assert.Error(t, err)
}

func TestInsertRowsRejectsUnsafeColumn(t *testing.T) {
	c := &Client{}
	err := c.InsertRows(context.Background(), "invsight.products",
		[]string{"product_id", "x) VALUES (1); DROP TABLE products --"}, [][]any{{1, 2}})
	assert.Error(t, err)
}
