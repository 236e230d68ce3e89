package models

// Category groups posts under a name, an icon glyph and a hex color.
type Category struct {
	ID    int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name  string `gorm:"type:varchar(255);not null;column:name" json:"name"`
	Icon  string `gorm:"type:varchar(32);column:icon" json:"icon"`
	Color string `gorm:"type:varchar(16);column:color" json:"color"`
}

// TableName specifies the table name for Category
func (Category) TableName() string {
	return "categories"
}
