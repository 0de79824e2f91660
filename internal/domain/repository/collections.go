package repository

import "InvSight/internal/domain/models"

// Entity collections known to the default join plan.
const (
	CollectionUsers        = "users"
	CollectionSuppliers    = "suppliers"
	CollectionWarehouses   = "warehouses"
	CollectionProducts     = "products"
	CollectionTransactions = "transactions"
	CollectionPredictions  = "predictions"
)

// TrainingCollection names the export collection for a role.
func TrainingCollection(role string) string { return "training_" + role }

// IsValidCollection returns true if name is a non-empty identifier safe for table names.
func IsValidCollection(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// PrimaryKeys declares the identifying column of each known collection.
var PrimaryKeys = map[string]string{
	CollectionUsers:        "user_id",
	CollectionSuppliers:    "supplier_id",
	CollectionWarehouses:   "warehouse_id",
	CollectionProducts:     "product_id",
	CollectionTransactions: "transaction_id",
	CollectionPredictions:  "request_id",
}

// ForeignKeys declares references between known collections.
var ForeignKeys = map[string][]models.ForeignKey{
	CollectionTransactions: {
		{Column: "product_id", Table: CollectionProducts},
		{Column: "user_id", Table: CollectionUsers},
	},
	CollectionProducts: {
		{Column: "supplier_id", Table: CollectionSuppliers},
		{Column: "warehouse_id", Table: CollectionWarehouses},
	},
}

// Describe attaches the declared keys of a known collection to t.
func Describe(t *models.EntityTable) *models.EntityTable {
	if t == nil {
		return nil
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = PrimaryKeys[t.Name]
	}
	if len(t.ForeignKeys) == 0 {
		t.ForeignKeys = ForeignKeys[t.Name]
	}
	return t
}
