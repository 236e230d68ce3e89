package models

// LegacyFile is a row of the single-file table that predates posts.
// It is only read by the legacy migration.
type LegacyFile struct {
	ID         int64  `gorm:"primaryKey;column:id"`
	Name       string `gorm:"column:name"`
	CategoryID *int64 `gorm:"column:category_id"`
	Size       int64  `gorm:"column:size"`
	FilePath   string `gorm:"column:file_path"`
	UploadDate string `gorm:"column:upload_date"`
}

// TableName specifies the table name for LegacyFile
func (LegacyFile) TableName() string {
	return "files"
}
