package database

import "go.mongodb.org/mongo-driver/mongo"

// Table 模型声明自己的集合名
type Table interface {
	GetTableName() string
}

// Coll 取模型对应的集合
func Coll(db *mongo.Database, t Table) *mongo.Collection {
	return db.Collection(t.GetTableName())
}
