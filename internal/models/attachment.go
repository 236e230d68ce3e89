package models

// Attachment is one uploaded file owned by exactly one post.
type Attachment struct {
	ID       int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PostID   int64  `gorm:"not null;index;column:post_id" json:"post_id"`
	FileName string `gorm:"type:varchar(1024);not null;column:file_name" json:"file_name"`
	FileSize int64  `gorm:"not null;default:0;column:file_size" json:"file_size"`
	FilePath string `gorm:"type:varchar(1024);column:file_path" json:"file_path"`

	Post *Post `gorm:"foreignKey:PostID;references:ID" json:"-"`
}

// TableName specifies the table name for Attachment
func (Attachment) TableName() string {
	return "attachments"
}
